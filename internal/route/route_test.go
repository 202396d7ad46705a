//    \\ SPIKE: Secure your secrets with SPIFFE.
//  \\\\\ Copyright 2024-present SPIKE contributors.
// \\\\\\\ SPDX-License-Identifier: Apache-2.0

package route_test

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spiffe/spike-chat/internal/chat"
	"github.com/spiffe/spike-chat/internal/commitment"
	"github.com/spiffe/spike-chat/internal/entity"
	"github.com/spiffe/spike-chat/internal/ledger"
	"github.com/spiffe/spike-chat/internal/lock"
	"github.com/spiffe/spike-chat/internal/merkle"
	"github.com/spiffe/spike-chat/internal/route"
	"github.com/spiffe/spike-chat/internal/scheduler"
	"github.com/spiffe/spike-chat/internal/store"
	"github.com/spiffe/spike-chat/internal/submission"
)

const adminToken = "test-admin-token"

func newServer(t *testing.T, difficulty int, expiry time.Duration) (*httptest.Server, *rsa.PrivateKey) {
	t.Helper()
	dir := t.TempDir()
	locks := lock.NewTable()

	submissionsDoc := store.New[int, entity.Submission](locks, "submissions", filepath.Join(dir, "submissions.json"))
	commitmentsDoc := store.New[string, bool](locks, "commitments", filepath.Join(dir, "commitments.json"))
	proofsDoc := store.New[string, ledger.State](locks, "proofs", filepath.Join(dir, "proofs.json"))
	chatDoc := store.New[string, entity.Chat](locks, "chat-messages", filepath.Join(dir, "chat.json"))
	keysDoc := store.New[string, string](locks, "public-keys", filepath.Join(dir, "public_keys.json"))

	var kek [32]byte
	for i := range kek {
		kek[i] = byte(i + 1)
	}

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	proofs := ledger.New(proofsDoc)
	submissions := submission.New(submissionsDoc, commitment.NewSet(commitmentsDoc), proofs, kek, difficulty, expiry)
	chats := chat.New(chatDoc, keysDoc, proofs, key, expiry)
	sched := scheduler.New(submissionsDoc, chatDoc, time.Hour)

	rt := route.New(submissions, chats, proofs, sched, key, adminToken)
	return httptest.NewServer(rt.Mux()), key
}

func solveNonce(t *testing.T, commitmentHex string, difficulty int) string {
	t.Helper()
	for n := 0; n < 2_000_000; n++ {
		nonce := strconv.Itoa(n)
		sum := sha256.Sum256([]byte(commitmentHex + nonce))
		digest := hex.EncodeToString(sum[:])
		ok := true
		for i := 0; i < difficulty; i++ {
			if digest[i] != '0' {
				ok = false
				break
			}
		}
		if ok {
			return nonce
		}
	}
	t.Fatal("failed to find a solving nonce")
	return ""
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

const specCommitment = "2c26b46b68ffc68ff99b453c1d30413413422d706483bfa0f98a5e886266e7a"

func TestHappySubmissionScenario1(t *testing.T) {
	srv, _ := newServer(t, 2, time.Hour)
	defer srv.Close()

	nonce := solveNonce(t, specCommitment, 2)
	resp := postJSON(t, srv.URL+"/auth/submit", entity.SubmitRequest{Data: "hello", Commitment: specCommitment, Nonce: nonce})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	submitResp := decode[entity.SubmitResponse](t, resp)
	assert.Equal(t, 1, submitResp.MsgID)

	rootResp, err := http.Get(srv.URL + "/verify/root")
	require.NoError(t, err)
	root := decode[entity.RootResponse](t, rootResp)

	expected := sha256.Sum256([]byte("hello"))
	assert.Equal(t, hex.EncodeToString(expected[:]), root.Root)
	assert.Equal(t, 1, root.TotalSubmissions)
}

func TestReplayRejectedScenario2(t *testing.T) {
	srv, _ := newServer(t, 0, time.Hour)
	defer srv.Close()

	resp := postJSON(t, srv.URL+"/auth/submit", entity.SubmitRequest{Data: "hello", Commitment: specCommitment, Nonce: "0"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp2 := postJSON(t, srv.URL+"/auth/submit", entity.SubmitRequest{Data: "hello-again", Commitment: specCommitment, Nonce: "0"})
	assert.Equal(t, http.StatusConflict, resp2.StatusCode)
}

func TestPowFailureScenario3(t *testing.T) {
	srv, _ := newServer(t, 4, time.Hour)
	defer srv.Close()

	resp := postJSON(t, srv.URL+"/auth/submit", entity.SubmitRequest{Data: "hello", Commitment: specCommitment, Nonce: "0"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestExpirySweepScenario4(t *testing.T) {
	srv, _ := newServer(t, 0, 0)
	defer srv.Close()

	resp := postJSON(t, srv.URL+"/auth/submit", entity.SubmitRequest{Data: "hello", Commitment: specCommitment, Nonce: "0"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	submitResp := decode[entity.SubmitResponse](t, resp)

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/admin/expire", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+adminToken)
	expireResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, expireResp.StatusCode)

	readResp, err := http.Get(srv.URL + "/auth/read/" + strconv.Itoa(submitResp.MsgID))
	require.NoError(t, err)
	assert.Equal(t, http.StatusGone, readResp.StatusCode)
}

func TestAdminExpireRejectsMissingToken(t *testing.T) {
	srv, _ := newServer(t, 0, time.Hour)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/admin/expire", "application/json", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func registerRSAKey(t *testing.T, srv *httptest.Server, userID string) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	pemBody := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})

	resp := postJSON(t, srv.URL+"/keys/register", entity.KeyRegisterRequest{UserID: userID, PublicKey: string(pemBody)})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestChatRoundTripScenario5(t *testing.T) {
	srv, _ := newServer(t, 0, time.Hour)
	defer srv.Close()

	registerRSAKey(t, srv, "alice")

	encMsg := base64.StdEncoding.EncodeToString([]byte("A"))
	encKey := base64.StdEncoding.EncodeToString([]byte("B"))
	resp := postJSON(t, srv.URL+"/chat/send", entity.ChatSendRequest{EncryptedMessage: encMsg, EncryptedKey: encKey, Receiver: "alice"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	sendResp := decode[entity.ChatSendResponse](t, resp)

	verifyResp := postJSON(t, srv.URL+"/verify/signature", entity.SignatureVerifyRequest{MsgID: sendResp.MessageID})
	require.Equal(t, http.StatusOK, verifyResp.StatusCode)
	verified := decode[entity.SignatureVerifyResponse](t, verifyResp)
	expectedHash := sha256.Sum256([]byte(encMsg))
	assert.True(t, verified.Valid)
	assert.Equal(t, hex.EncodeToString(expectedHash[:]), verified.Hash)

	inboxResp, err := http.Get(srv.URL + "/chat/inbox/alice")
	require.NoError(t, err)
	var entries []entity.ChatInboxEntry
	require.NoError(t, json.NewDecoder(inboxResp.Body).Decode(&entries))
	require.Len(t, entries, 1)
	assert.Equal(t, sendResp.MessageID, entries[0].MessageID)
}

func TestInclusionProofScenario6(t *testing.T) {
	srv, _ := newServer(t, 0, time.Hour)
	defer srv.Close()

	resp := postJSON(t, srv.URL+"/auth/submit", entity.SubmitRequest{Data: "hello", Commitment: specCommitment, Nonce: "0"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	submitResp := decode[entity.SubmitResponse](t, resp)

	proofResp, err := http.Get(srv.URL + "/verify/proof/" + strconv.Itoa(submitResp.MsgID))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, proofResp.StatusCode)
	proof := decode[entity.ProofResponse](t, proofResp)

	rootResp, err := http.Get(srv.URL + "/verify/root")
	require.NoError(t, err)
	root := decode[entity.RootResponse](t, rootResp)

	assert.Equal(t, root.Root, proof.MerkleRoot)
	assert.True(t, merkle.Verify(proof.LeafHash, proof.ProofPath, root.Root))
}

func TestVerifyHashLookup(t *testing.T) {
	srv, _ := newServer(t, 0, time.Hour)
	defer srv.Close()

	postJSON(t, srv.URL+"/auth/submit", entity.SubmitRequest{Data: "hello", Commitment: specCommitment, Nonce: "0"})

	resp := postJSON(t, srv.URL+"/verify/hash", entity.HashCheckRequest{Data: "hello"})
	found := decode[entity.HashCheckResponse](t, resp)
	assert.True(t, found.Found)

	resp2 := postJSON(t, srv.URL+"/verify/hash", entity.HashCheckRequest{Data: "never-submitted"})
	notFound := decode[entity.HashCheckResponse](t, resp2)
	assert.False(t, notFound.Found)
}

func TestServerPublicKeyEndpoint(t *testing.T) {
	srv, key := newServer(t, 0, time.Hour)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/keys/server/pubkey")
	require.NoError(t, err)
	keyResp := decode[entity.KeyResponse](t, resp)

	block, _ := pem.Decode([]byte(keyResp.PublicKey))
	require.NotNil(t, block)
	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	require.NoError(t, err)
	rsaPub, ok := parsed.(*rsa.PublicKey)
	require.True(t, ok)
	assert.Equal(t, key.PublicKey.N, rsaPub.N)
}

func TestEmptyRootIsEmptyString(t *testing.T) {
	srv, _ := newServer(t, 0, time.Hour)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/verify/root")
	require.NoError(t, err)
	root := decode[entity.RootResponse](t, resp)
	assert.Equal(t, "", root.Root)
	assert.Equal(t, 0, root.TotalSubmissions)
}
