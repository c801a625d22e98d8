// Package sipdialer implements the Radio contract over SIP. A dial attempt
// becomes an outbound INVITE toward the configured gateway; SIP failure
// classes map onto the modem failure taxonomy so the retry machinery treats
// a SIP gateway the same as a native radio.
package sipdialer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/emiago/sipgo"
	"github.com/emiago/sipgo/sip"
	"github.com/google/uuid"

	"github.com/sebas/towerline/internal/callmgr/candidate"
	"github.com/sebas/towerline/internal/radiolink"
)

// Config holds SIP dialer configuration.
type Config struct {
	// Gateway is the SIP host (host or host:port) that terminates calls.
	Gateway string

	// AdvertiseAddr and Port form our local identity in From/Contact.
	AdvertiseAddr string
	Port          int

	// CallerID is the user part of the From header.
	CallerID string

	// RTPPort is the advertised media port in the SDP offer.
	RTPPort int

	// Codecs are the offered payload types (defaults to PCMU/PCMA).
	Codecs []string
}

// Dialer places calls by sending INVITEs through a sipgo client.
type Dialer struct {
	cfg    Config
	ua     *sipgo.UserAgent
	client *sipgo.Client
}

// New creates a SIP dialer with its own user agent and client.
func New(cfg Config) (*Dialer, error) {
	if cfg.Gateway == "" {
		return nil, fmt.Errorf("sipdialer: gateway required")
	}
	if cfg.Port == 0 {
		cfg.Port = 5060
	}
	if cfg.RTPPort == 0 {
		cfg.RTPPort = 10000
	}
	if len(cfg.Codecs) == 0 {
		cfg.Codecs = []string{"0", "8"}
	}
	if cfg.CallerID == "" {
		cfg.CallerID = "towerline"
	}

	ua, err := sipgo.NewUA()
	if err != nil {
		return nil, fmt.Errorf("create user agent: %w", err)
	}
	client, err := sipgo.NewClient(ua)
	if err != nil {
		ua.Close()
		return nil, fmt.Errorf("create client: %w", err)
	}

	return &Dialer{cfg: cfg, ua: ua, client: client}, nil
}

// Close releases the SIP user agent.
func (d *Dialer) Close() error {
	return d.ua.Close()
}

// Dial implements radiolink.Radio. It blocks until the INVITE is answered,
// rejected, or the context ends. A 2xx answer yields a handle whose Hangup
// sends BYE; failures come back as CallStateError.
func (d *Dialer) Dial(ctx context.Context, cand candidate.Candidate, address string, args radiolink.DialArgs) (radiolink.CallHandle, error) {
	callID := uuid.New().String()
	localTag := uuid.New().String()[:8]

	invite, err := d.buildINVITE(callID, localTag, address, args)
	if err != nil {
		return nil, fmt.Errorf("build INVITE: %w", err)
	}

	tx, err := d.client.TransactionRequest(ctx, invite)
	if err != nil {
		return nil, &radiolink.CallStateError{
			Precise: radiolink.PreciseTemporaryFailure,
			Message: fmt.Sprintf("transaction failed: %v", err),
		}
	}

	slog.Info("[SIPDialer] INVITE sent",
		"call_id", callID,
		"slot", cand.Slot,
		"address", address,
		"emergency", args.IsEmergency,
	)

	for {
		select {
		case <-ctx.Done():
			_ = d.sendCANCEL(invite)
			return nil, &radiolink.CallStateError{
				Precise: radiolink.PreciseTemporaryFailure,
				Message: "dial timed out",
			}

		case resp := <-tx.Responses():
			if resp == nil {
				return nil, &radiolink.CallStateError{
					Precise: radiolink.PreciseTemporaryFailure,
					Message: "no response received",
				}
			}

			code := int(resp.StatusCode)
			switch {
			case code < 200:
				slog.Debug("[SIPDialer] Provisional response",
					"call_id", callID,
					"status", code,
				)
				continue

			case code < 300:
				if err := d.sendACK(invite, resp); err != nil {
					slog.Error("[SIPDialer] Failed to send ACK",
						"call_id", callID,
						"error", err,
					)
				}
				slog.Info("[SIPDialer] Call answered",
					"call_id", callID,
					"status", code,
				)
				return d.newHandle(callID, invite, resp), nil

			default:
				slog.Info("[SIPDialer] Call rejected",
					"call_id", callID,
					"status", code,
					"reason", resp.Reason,
				)
				return nil, classifyFailure(code, resp.Reason)
			}

		case <-tx.Done():
			return nil, &radiolink.CallStateError{
				Precise: radiolink.PreciseTemporaryFailure,
				Message: "transaction terminated without final response",
			}
		}
	}
}

// classifyFailure maps a SIP failure status onto the modem failure taxonomy.
func classifyFailure(code int, reason string) *radiolink.CallStateError {
	msg := fmt.Sprintf("%d %s", code, reason)
	switch {
	case code == 380:
		// Alternative Service: the network wants this call redialed as an
		// emergency call.
		return &radiolink.CallStateError{
			Precise: radiolink.PreciseTemporaryFailure,
			Reason:  &radiolink.ReasonInfo{Code: radiolink.ReasonSIPAlternateEmergencyCall},
			Message: msg,
		}
	case code == 486 || code == 600:
		return &radiolink.CallStateError{
			Precise: radiolink.PreciseBusy,
			Message: msg,
		}
	case code == 404 || code == 484 || code == 604:
		return &radiolink.CallStateError{
			Permanent: true,
			Precise:   radiolink.PreciseNoRouteToDestination,
			Message:   msg,
		}
	case code == 403 || code == 603:
		return &radiolink.CallStateError{
			Permanent: true,
			Precise:   radiolink.PreciseErrorUnspecified,
			Message:   msg,
		}
	default:
		return &radiolink.CallStateError{
			Precise: radiolink.PreciseTemporaryFailure,
			Message: msg,
		}
	}
}

// buildINVITE constructs the outbound INVITE request.
func (d *Dialer) buildINVITE(callID, localTag, address string, args radiolink.DialArgs) (*sip.Request, error) {
	target := fmt.Sprintf("sip:%s@%s", address, d.cfg.Gateway)
	if args.IsEmergency {
		// RFC 5031 service URN carried as the user part toward the gateway.
		target = fmt.Sprintf("sip:%s@%s", emergencyUser(args.Category), d.cfg.Gateway)
	}

	var requestURI sip.Uri
	if err := sip.ParseUri(target, &requestURI); err != nil {
		return nil, fmt.Errorf("invalid target URI: %w", err)
	}

	invite := sip.NewRequest(sip.INVITE, requestURI)

	maxFwd := sip.MaxForwardsHeader(70)
	invite.AppendHeader(&maxFwd)

	fromURI := sip.Uri{
		Scheme: "sip",
		User:   d.cfg.CallerID,
		Host:   d.cfg.AdvertiseAddr,
		Port:   d.cfg.Port,
	}
	fromParams := sip.NewParams()
	fromParams.Add("tag", localTag)
	invite.AppendHeader(&sip.FromHeader{
		Address: fromURI,
		Params:  fromParams,
	})

	invite.AppendHeader(&sip.ToHeader{
		Address: requestURI,
		Params:  sip.NewParams(),
	})

	callIDHdr := sip.CallIDHeader(callID)
	invite.AppendHeader(&callIDHdr)

	invite.AppendHeader(&sip.CSeqHeader{
		SeqNo:      1,
		MethodName: sip.INVITE,
	})

	invite.AppendHeader(&sip.ContactHeader{
		Address: sip.Uri{
			Scheme: "sip",
			User:   "towerline",
			Host:   d.cfg.AdvertiseAddr,
			Port:   d.cfg.Port,
		},
	})

	contentType := sip.ContentTypeHeader("application/sdp")
	invite.AppendHeader(&contentType)

	body, err := buildOffer(d.cfg.AdvertiseAddr, d.cfg.RTPPort, d.cfg.Codecs)
	if err != nil {
		return nil, fmt.Errorf("build SDP offer: %w", err)
	}
	invite.SetBody(body)

	return invite, nil
}

// emergencyUser returns the user part for an emergency INVITE, following
// the urn:service:sos dotted sub-service form.
func emergencyUser(category int) string {
	if category != 0 {
		return fmt.Sprintf("sos.%d", category)
	}
	return "sos"
}

// sendACK sends the ACK for a 2xx. Per RFC 3261 the ACK for a 2xx is a new
// request sent outside the INVITE transaction.
func (d *Dialer) sendACK(invite *sip.Request, resp *sip.Response) error {
	requestURI := invite.Recipient
	if contact := resp.Contact(); contact != nil {
		requestURI = contact.Address
	}

	ack := sip.NewRequest(sip.ACK, requestURI)
	sip.CopyHeaders("From", invite, ack)
	sip.CopyHeaders("Call-ID", invite, ack)

	if to := resp.To(); to != nil {
		ack.AppendHeader(&sip.ToHeader{
			DisplayName: to.DisplayName,
			Address:     to.Address,
			Params:      to.Params,
		})
	}
	if cseq := invite.CSeq(); cseq != nil {
		ack.AppendHeader(&sip.CSeqHeader{
			SeqNo:      cseq.SeqNo,
			MethodName: sip.ACK,
		})
	}
	maxFwd := sip.MaxForwardsHeader(70)
	ack.AppendHeader(&maxFwd)

	if dest := resp.Source(); dest != "" {
		ack.SetDestination(dest)
	}

	done := make(chan error, 1)
	go func() {
		done <- d.client.WriteRequest(ack)
	}()
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("write ACK: %w", err)
		}
		return nil
	case <-time.After(5 * time.Second):
		return fmt.Errorf("ACK write timed out")
	}
}

// sendCANCEL cancels an in-progress INVITE.
func (d *Dialer) sendCANCEL(invite *sip.Request) error {
	cancelReq := sip.NewRequest(sip.CANCEL, invite.Recipient)
	sip.CopyHeaders("From", invite, cancelReq)
	sip.CopyHeaders("To", invite, cancelReq)
	sip.CopyHeaders("Call-ID", invite, cancelReq)

	if cseq := invite.CSeq(); cseq != nil {
		cancelReq.AppendHeader(&sip.CSeqHeader{
			SeqNo:      cseq.SeqNo,
			MethodName: sip.CANCEL,
		})
	}
	maxFwd := sip.MaxForwardsHeader(70)
	cancelReq.AppendHeader(&maxFwd)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	tx, err := d.client.TransactionRequest(ctx, cancelReq)
	if err != nil {
		return fmt.Errorf("send CANCEL: %w", err)
	}
	select {
	case <-tx.Responses():
	case <-tx.Done():
	case <-ctx.Done():
	}
	return nil
}

// sipHandle is a live answered call. Hangup sends BYE toward the dialog's
// remote target.
type sipHandle struct {
	id     string
	dialer *Dialer

	mu            sync.Mutex
	done          bool
	remoteContact sip.Uri
	toHeader      *sip.ToHeader
	fromHeader    *sip.FromHeader
	dest          string
}

func (d *Dialer) newHandle(callID string, invite *sip.Request, resp *sip.Response) *sipHandle {
	h := &sipHandle{
		id:            callID,
		dialer:        d,
		remoteContact: invite.Recipient,
		dest:          resp.Source(),
	}
	if contact := resp.Contact(); contact != nil {
		h.remoteContact = contact.Address
	}
	if to := resp.To(); to != nil {
		h.toHeader = &sip.ToHeader{
			Address: to.Address,
			Params:  to.Params,
		}
	}
	if from := invite.From(); from != nil {
		h.fromHeader = &sip.FromHeader{
			Address: from.Address,
			Params:  from.Params,
		}
	}
	return h
}

// ID implements radiolink.CallHandle.
func (h *sipHandle) ID() string { return h.id }

// Hangup implements radiolink.CallHandle by sending BYE.
func (h *sipHandle) Hangup(ctx context.Context) error {
	h.mu.Lock()
	if h.done {
		h.mu.Unlock()
		return nil
	}
	h.done = true
	h.mu.Unlock()

	bye := sip.NewRequest(sip.BYE, h.remoteContact)

	maxFwd := sip.MaxForwardsHeader(70)
	bye.AppendHeader(&maxFwd)
	if h.fromHeader != nil {
		bye.AppendHeader(h.fromHeader)
	}
	if h.toHeader != nil {
		bye.AppendHeader(h.toHeader)
	}
	callIDHdr := sip.CallIDHeader(h.id)
	bye.AppendHeader(&callIDHdr)
	bye.AppendHeader(&sip.CSeqHeader{
		SeqNo:      2,
		MethodName: sip.BYE,
	})
	if h.dest != "" {
		bye.SetDestination(h.dest)
	}

	slog.Info("[SIPDialer] Sending BYE", "call_id", h.id)

	tx, err := h.dialer.client.TransactionRequest(ctx, bye)
	if err != nil {
		return fmt.Errorf("send BYE: %w", err)
	}
	select {
	case <-tx.Responses():
	case <-tx.Done():
	case <-ctx.Done():
	}
	return nil
}
