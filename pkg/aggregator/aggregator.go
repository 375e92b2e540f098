// Package aggregator is the concrete Authority Aggregator (C3): for a
// given action it fans signed-event requests out to committee members,
// verifies each returned signature, accumulates stake, and produces a
// VerifiedCertificate once the stake threshold clears. The executor
// depends only on this package's RequestCommitteeSignatures method; the
// fan-out, verification, and stake counting below is this package's own
// concern, not a dependency of the core pipeline.
package aggregator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/certen/bridge-orchestrator/pkg/bridgeaction"
	"github.com/certen/bridge-orchestrator/pkg/encoding"
)

// CollectionError reports why signature collection failed, distinguishing
// the three failure kinds the core's error-handling design names.
type CollectionError struct {
	InsufficientStake bool
	SigningErrors     []error
	TransportErrors   []error
}

func (e *CollectionError) Error() string {
	if e.InsufficientStake {
		return fmt.Sprintf("aggregator: insufficient stake collected (%d signing errors, %d transport errors)", len(e.SigningErrors), len(e.TransportErrors))
	}
	return fmt.Sprintf("aggregator: collection failed (%d signing errors, %d transport errors)", len(e.SigningErrors), len(e.TransportErrors))
}

// SignedActionRequest is the wire request sent to an authority. It has
// fields for the action's source event identity, but requestFromAuthority
// fills only RequestID and MessageBytes, so SourceTxID and
// SourceEventIndex are sent empty.
type SignedActionRequest struct {
	RequestID        uuid.UUID `json:"request_id"`
	SourceTxID       []byte    `json:"source_tx_id"`
	SourceEventIndex uint16    `json:"source_event_index"`
	MessageBytes     []byte    `json:"message_bytes"`
}

// SignedActionResponse is an authority's reply: either a signature over
// MessageBytes, or an error.
type SignedActionResponse struct {
	RequestID uuid.UUID `json:"request_id"`
	PublicKey []byte    `json:"public_key,omitempty"`
	Signature []byte    `json:"signature,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// CommitteeAggregator is the concrete Aggregator. It holds an immutable
// committee snapshot and a shared HTTP client; both are safe to use
// concurrently from multiple pipeline goroutines.
type CommitteeAggregator struct {
	committee  *bridgeaction.Committee
	httpClient *http.Client
	logger     *log.Logger
}

// New builds a CommitteeAggregator over committee, with requestTimeout
// applied per committee member request.
func New(committee *bridgeaction.Committee, requestTimeout time.Duration, logger *log.Logger) *CommitteeAggregator {
	if logger == nil {
		logger = log.New(log.Writer(), "[aggregator] ", log.LstdFlags)
	}
	return &CommitteeAggregator{
		committee:  committee,
		httpClient: &http.Client{Timeout: requestTimeout},
		logger:     logger,
	}
}

// RequestCommitteeSignatures fans out to every non-blocklisted committee
// member, verifies each signature against the authority's public key,
// and returns as soon as accumulated stake clears threshold. Stragglers
// are abandoned: the response channel is drained to completion by a
// detached goroutine so slow or stalled authorities never leak.
func (a *CommitteeAggregator) RequestCommitteeSignatures(ctx context.Context, action *bridgeaction.Action, threshold uint64) (*bridgeaction.VerifiedCertificate, error) {
	messageBytes, err := encoding.EncodeWithPrefix(action)
	if err != nil {
		return nil, fmt.Errorf("aggregator: encode action: %w", err)
	}

	members := a.committee.ActiveMembers()
	responses := make(chan *SignedActionResponse, len(members))

	var wg sync.WaitGroup
	for _, member := range members {
		wg.Add(1)
		go func(m bridgeaction.AuthorityMember) {
			defer wg.Done()
			resp := a.requestFromAuthority(ctx, m, messageBytes)
			responses <- resp
		}(member)
	}
	go func() {
		wg.Wait()
		close(responses)
	}()

	signatures := make(map[string][]byte)
	var stake uint64
	var signingErrs []error
	var transportErrs []error

	for resp := range responses {
		if resp.Error != "" {
			if resp.PublicKey == nil {
				transportErrs = append(transportErrs, fmt.Errorf("%s", resp.Error))
			} else {
				signingErrs = append(signingErrs, fmt.Errorf("%s", resp.Error))
			}
			continue
		}

		memberStake, ok := a.committee.StakeOf(resp.PublicKey)
		if !ok {
			signingErrs = append(signingErrs, fmt.Errorf("aggregator: signature from unknown authority %x", resp.PublicKey))
			continue
		}

		signatures[bridgeaction.PubKeyHex(resp.PublicKey)] = resp.Signature
		stake += memberStake

		if stake >= threshold {
			go drainRemaining(responses)
			cert := &bridgeaction.Certificate{Action: action, Signatures: signatures}
			return bridgeaction.NewVerifiedCertificate(cert), nil
		}
	}

	return nil, &CollectionError{
		InsufficientStake: true,
		SigningErrors:     signingErrs,
		TransportErrors:   transportErrs,
	}
}

// drainRemaining discards every response still in flight after quorum
// was already reached, so the per-action goroutines that produced them
// are never left blocked on a send.
func drainRemaining(responses <-chan *SignedActionResponse) {
	for range responses {
	}
}

func (a *CommitteeAggregator) requestFromAuthority(ctx context.Context, member bridgeaction.AuthorityMember, messageBytes []byte) *SignedActionResponse {
	req := &SignedActionRequest{
		RequestID:    uuid.New(),
		MessageBytes: messageBytes,
	}
	body, err := json.Marshal(req)
	if err != nil {
		return &SignedActionResponse{Error: fmt.Sprintf("marshal request: %v", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, member.BaseURL+"/v1/sign", bytes.NewReader(body))
	if err != nil {
		return &SignedActionResponse{Error: fmt.Sprintf("build request: %v", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Request-ID", req.RequestID.String())

	httpResp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return &SignedActionResponse{Error: fmt.Sprintf("transport error: %v", err)}
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return &SignedActionResponse{Error: fmt.Sprintf("read response: %v", err)}
	}
	if httpResp.StatusCode != http.StatusOK {
		return &SignedActionResponse{Error: fmt.Sprintf("authority returned status %d: %s", httpResp.StatusCode, string(respBody))}
	}

	var signed SignedActionResponse
	if err := json.Unmarshal(respBody, &signed); err != nil {
		return &SignedActionResponse{Error: fmt.Sprintf("parse response: %v", err)}
	}

	if err := verifySignature(member.PublicKey, messageBytes, signed.Signature); err != nil {
		return &SignedActionResponse{PublicKey: member.PublicKey, Error: fmt.Sprintf("signature verification failed: %v", err)}
	}
	signed.PublicKey = member.PublicKey
	return &signed
}
