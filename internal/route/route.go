//    \\ SPIKE: Secure your secrets with SPIFFE.
//  \\\\\ Copyright 2024-present SPIKE contributors.
// \\\\\\\ SPDX-License-Identifier: Apache-2.0

// Package route wires the HTTP surface of §6 onto the submission, chat,
// ledger, and scheduler pipelines. Every handler is wrapped in an audit-log
// decorator that records entry and exit exactly as the teacher's route
// factory does, generalized from one catch-all mux to this system's fixed
// set of registrations.
package route

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"net/http"
	"strconv"
	"time"

	"github.com/spiffe/spike-chat/internal/apierr"
	"github.com/spiffe/spike-chat/internal/chat"
	"github.com/spiffe/spike-chat/internal/commitment"
	"github.com/spiffe/spike-chat/internal/entity"
	"github.com/spiffe/spike-chat/internal/ledger"
	"github.com/spiffe/spike-chat/internal/log"
	"github.com/spiffe/spike-chat/internal/scheduler"
	"github.com/spiffe/spike-chat/internal/signature"
	"github.com/spiffe/spike-chat/internal/submission"
)

// Router holds every dependency the HTTP surface needs and registers it onto
// a standard library mux.
type Router struct {
	submissions *submission.Pipeline
	chats       *chat.Pipeline
	ledger      *ledger.Ledger
	scheduler   *scheduler.Scheduler
	signingKey  *rsa.PrivateKey
	adminToken  string
}

// New builds a Router over the given pipelines.
func New(
	submissions *submission.Pipeline,
	chats *chat.Pipeline,
	ledg *ledger.Ledger,
	sched *scheduler.Scheduler,
	signingKey *rsa.PrivateKey,
	adminToken string,
) *Router {
	return &Router{
		submissions: submissions,
		chats:       chats,
		ledger:      ledg,
		scheduler:   sched,
		signingKey:  signingKey,
		adminToken:  adminToken,
	}
}

// Mux builds the full net/http handler for the service.
func (rt *Router) Mux() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /auth/identity", rt.audited(log.AuditIdentityIssued, rt.handleIdentity))
	mux.HandleFunc("POST /auth/submit", rt.audited(log.AuditSubmit, rt.handleSubmit))
	mux.HandleFunc("GET /auth/read/{msg_id}", rt.audited(log.AuditRead, rt.handleRead))

	mux.HandleFunc("POST /chat/send", rt.audited(log.AuditChatSend, rt.handleChatSend))
	mux.HandleFunc("GET /chat/inbox/{user_id}", rt.audited(log.AuditChatInbox, rt.handleChatInbox))

	mux.HandleFunc("POST /keys/register", rt.audited(log.AuditKeyRegister, rt.handleKeyRegister))
	mux.HandleFunc("GET /keys/server/pubkey", rt.audited(log.AuditVerify, rt.handleServerPubkey))
	mux.HandleFunc("GET /keys/{user_id}", rt.audited(log.AuditVerify, rt.handleKeyFetch))

	mux.HandleFunc("GET /verify/root", rt.audited(log.AuditVerify, rt.handleVerifyRoot))
	mux.HandleFunc("POST /verify/hash", rt.audited(log.AuditVerify, rt.handleVerifyHash))
	mux.HandleFunc("GET /verify/proof/{id}", rt.audited(log.AuditVerify, rt.handleVerifyProof))
	mux.HandleFunc("POST /verify/signature", rt.audited(log.AuditVerify, rt.handleVerifySignature))

	mux.HandleFunc("GET /admin/status", rt.audited(log.AuditSweep, rt.requireAdmin(rt.handleAdminStatus)))
	mux.HandleFunc("POST /admin/expire", rt.audited(log.AuditAdminExpire, rt.requireAdmin(rt.handleAdminExpire)))

	mux.HandleFunc("/", fallback)

	return mux
}

// audited wraps handler with the entry/exit audit trail described in the
// logging expansion (§4.13).
func (rt *Router) audited(action log.AuditAction, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const fName = "audited"
		start := time.Now().UTC()
		entry := log.AuditEntry{TrailID: log.NewTrailID(), Timestamp: start, State: log.AuditCreated}
		log.AuditRequest(fName, r, &entry, action)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		handler(rec, r)

		entry.Duration = time.Since(start)
		if rec.status >= 400 {
			entry.State = log.AuditErrored
		} else {
			entry.State = log.AuditSuccess
		}
		log.Audit(entry)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

// requireAdmin enforces the Authorization: Bearer {ADMIN_TOKEN} header
// required by every /admin/* route.
func (rt *Router) requireAdmin(handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const prefix = "Bearer "
		header := r.Header.Get("Authorization")
		if len(header) <= len(prefix) || header[:len(prefix)] != prefix || header[len(prefix):] != rt.adminToken {
			respondError(w, apierr.New(apierr.Unauthorized, "missing or invalid admin token"))
			return
		}
		handler(w, r)
	}
}

func (rt *Router) handleIdentity(w http.ResponseWriter, _ *http.Request) {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		respondError(w, apierr.Wrap(err, "internal error"))
		return
	}
	secretHex := hex.EncodeToString(secret)
	id := commitment.Derive(secretHex)
	respond(w, http.StatusOK, entity.IdentityResponse{
		IdentitySecret: id.IdentitySecret,
		Nullifier:      id.Nullifier,
		Commitment:     id.Commitment,
	})
}

func (rt *Router) handleSubmit(w http.ResponseWriter, r *http.Request) {
	req, err := readRequestBody[entity.SubmitRequest](r)
	if err != nil {
		respondError(w, err)
		return
	}

	msgID, expiry, err := rt.submissions.Admit(req.Data, req.Commitment, req.Nonce)
	if err != nil {
		respondError(w, err)
		return
	}

	respond(w, http.StatusCreated, entity.SubmitResponse{Status: "accepted", MsgID: msgID, Expiry: expiry})
}

func (rt *Router) handleRead(w http.ResponseWriter, r *http.Request) {
	msgID, err := strconv.Atoi(r.PathValue("msg_id"))
	if err != nil {
		respondError(w, apierr.New(apierr.NotFound, "unknown msg_id"))
		return
	}

	data, expiry, err := rt.submissions.Read(msgID)
	if err != nil {
		respondError(w, err)
		return
	}

	respond(w, http.StatusOK, entity.ReadResponse{MsgID: msgID, Data: data, Expiry: expiry})
}

func (rt *Router) handleChatSend(w http.ResponseWriter, r *http.Request) {
	req, err := readRequestBody[entity.ChatSendRequest](r)
	if err != nil {
		respondError(w, err)
		return
	}

	messageID, expiry, err := rt.chats.Send(req.EncryptedMessage, req.EncryptedKey, req.Receiver)
	if err != nil {
		respondError(w, err)
		return
	}

	respond(w, http.StatusCreated, entity.ChatSendResponse{MessageID: messageID, Expiry: expiry})
}

func (rt *Router) handleChatInbox(w http.ResponseWriter, r *http.Request) {
	entries, err := rt.chats.Inbox(r.PathValue("user_id"))
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, entries)
}

func (rt *Router) handleKeyRegister(w http.ResponseWriter, r *http.Request) {
	req, err := readRequestBody[entity.KeyRegisterRequest](r)
	if err != nil {
		respondError(w, err)
		return
	}

	if req.UserID == "" || req.PublicKey == "" {
		respondError(w, apierr.New(apierr.BadRequest, "user_id and public_key are required"))
		return
	}
	block, _ := pem.Decode([]byte(req.PublicKey))
	if block == nil {
		respondError(w, apierr.New(apierr.BadRequest, "public_key is not valid PEM"))
		return
	}
	if _, err := x509.ParsePKIXPublicKey(block.Bytes); err != nil {
		respondError(w, apierr.New(apierr.BadRequest, "public_key is not a valid public key"))
		return
	}

	if err := rt.chats.RegisterKey(req.UserID, req.PublicKey); err != nil {
		respondError(w, err)
		return
	}

	respond(w, http.StatusCreated, entity.KeyResponse{UserID: req.UserID, PublicKey: req.PublicKey})
}

func (rt *Router) handleKeyFetch(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("user_id")
	pemBody, err := rt.chats.PublicKey(userID)
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, entity.KeyResponse{UserID: userID, PublicKey: pemBody})
}

func (rt *Router) handleServerPubkey(w http.ResponseWriter, _ *http.Request) {
	der, err := x509.MarshalPKIXPublicKey(&rt.signingKey.PublicKey)
	if err != nil {
		respondError(w, apierr.Wrap(err, "internal error"))
		return
	}
	pemBody := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})
	respond(w, http.StatusOK, entity.KeyResponse{PublicKey: string(pemBody)})
}

func (rt *Router) handleVerifyRoot(w http.ResponseWriter, _ *http.Request) {
	root, count, err := rt.ledger.Root()
	if err != nil {
		respondError(w, apierr.Wrap(err, "internal error"))
		return
	}
	respond(w, http.StatusOK, entity.RootResponse{Root: root, TotalSubmissions: count})
}

func (rt *Router) handleVerifyHash(w http.ResponseWriter, r *http.Request) {
	req, err := readRequestBody[entity.HashCheckRequest](r)
	if err != nil {
		respondError(w, err)
		return
	}

	digest := sha256Hex(req.Data)
	found, err := rt.ledger.FindByHash(digest)
	if err != nil {
		respondError(w, apierr.Wrap(err, "internal error"))
		return
	}
	root, _, err := rt.ledger.Root()
	if err != nil {
		respondError(w, apierr.Wrap(err, "internal error"))
		return
	}

	respond(w, http.StatusOK, entity.HashCheckResponse{DataHash: digest, Found: found, MerkleRoot: root})
}

func (rt *Router) handleVerifyProof(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	leaf, proof, root, err := rt.ledger.InclusionProof(id)
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, entity.ProofResponse{LeafHash: leaf, MerkleRoot: root, ProofPath: proof})
}

func (rt *Router) handleVerifySignature(w http.ResponseWriter, r *http.Request) {
	req, err := readRequestBody[entity.SignatureVerifyRequest](r)
	if err != nil {
		respondError(w, err)
		return
	}

	id := req.MsgID
	proof, ok, err := rt.ledger.Get(id)
	if err != nil {
		respondError(w, apierr.Wrap(err, "internal error"))
		return
	}
	if !ok {
		respondError(w, apierr.New(apierr.NotFound, "no proof record for msg_id"))
		return
	}

	current, found, err := rt.resolveCurrentContent(id)
	if err != nil {
		respondError(w, apierr.Wrap(err, "internal error"))
		return
	}
	if !found {
		respondError(w, apierr.New(apierr.NotFound, "no record for msg_id"))
		return
	}

	hash := sha256Hex(current)
	if proof.Signature == "" {
		respond(w, http.StatusOK, entity.SignatureVerifyResponse{Note: "no signature exists for this record", Hash: hash})
		return
	}

	valid := signature.Verify(&rt.signingKey.PublicKey, []byte(current), proof.Signature)
	respond(w, http.StatusOK, entity.SignatureVerifyResponse{Valid: valid, Hash: hash})
}

// resolveCurrentContent finds the content the proof record at id was
// computed over, trying a chat message_id first and a submission msg_id
// second, since id's string form is ambiguous between the two key spaces.
func (rt *Router) resolveCurrentContent(id string) (content string, found bool, err error) {
	if content, ok, err := rt.chats.EncryptedMessage(id); err != nil {
		return "", false, err
	} else if ok {
		return content, true, nil
	}

	msgID, convErr := strconv.Atoi(id)
	if convErr != nil {
		return "", false, nil
	}
	return rt.submissions.Ciphertext(msgID)
}

func (rt *Router) handleAdminStatus(w http.ResponseWriter, _ *http.Request) {
	root, count, err := rt.ledger.Root()
	if err != nil {
		respondError(w, apierr.Wrap(err, "internal error"))
		return
	}
	respond(w, http.StatusOK, entity.RootResponse{Root: root, TotalSubmissions: count})
}

func (rt *Router) handleAdminExpire(w http.ResponseWriter, _ *http.Request) {
	submissionsSwept, chatSwept := rt.scheduler.Sweep()
	respond(w, http.StatusOK, entity.ExpireResponse{
		Status:           "swept",
		SubmissionsSwept: submissionsSwept,
		ChatSwept:        chatSwept,
	})
}
