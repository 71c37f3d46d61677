// Copyright (c) 2025 The forest-wallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package slate

import (
	"context"
	"crypto/rand"
	"errors"
	"io"

	"github.com/forestblock/forest-wallet/aggsig"
	"github.com/forestblock/forest-wallet/commit"
	"github.com/forestblock/forest-wallet/core"
	"github.com/forestblock/forest-wallet/participant"
	"github.com/forestblock/forest-wallet/werr"
	"github.com/lightningnetwork/lnd/fn/v2"
	"golang.org/x/crypto/blake2b"
)

// randReader is the offset entropy source. Tests swap it for a fixed
// stream.
var randReader io.Reader = rand.Reader

// unpack returns the value held by o and whether there was one.
func unpack[A any](o fn.Option[A]) (A, bool) {
	var v A
	o.WhenSome(func(a A) {
		v = a
	})
	return v, o.IsSome()
}

// messageHash is what a participant's message signature covers.
func messageHash(msg string) []byte {
	h := blake2b.Sum256([]byte(msg))
	return h[:]
}

// AddParticipantInfo appends the public data derived from ctx to the slate,
// signing message with the context's excess key when one is given.
func (s *Slate) AddParticipantInfo(ctx *participant.Context,
	message fn.Option[string]) error {

	if err := s.CheckVersion(); err != nil {
		return err
	}
	if len(s.ParticipantData) >= s.NumParticipants {
		return werr.Newf(werr.ErrParticipantCount,
			"slate already holds %d of %d participants",
			len(s.ParticipantData), s.NumParticipants)
	}
	if _, ok := s.Participant(ctx.ParticipantID); ok {
		return werr.ForParticipant(werr.ErrParticipantIDCollision,
			ctx.ParticipantID, "participant already on slate", nil)
	}

	pubExcess, err := ctx.PublicBlindExcess()
	if err != nil {
		return werr.New(werr.ErrKeychain, "public excess", err)
	}
	pubNonce, err := ctx.PublicNonce()
	if err != nil {
		return werr.New(werr.ErrKeychain, "public nonce", err)
	}

	data := ParticipantData{
		ID:                ctx.ParticipantID,
		PublicBlindExcess: pubExcess,
		PublicNonce:       pubNonce,
		PartSig:           fn.None[aggsig.Signature](),
		Message:           message,
		MessageSig:        fn.None[aggsig.Signature](),
	}

	if msg, ok := unpack(message); ok {
		secKey, err := ctx.SecKey.Scalar()
		if err != nil {
			return werr.New(werr.ErrKeychain, "excess key", err)
		}
		sig, err := aggsig.Sign(&secKey, messageHash(msg))
		secKey.Zero()
		if err != nil {
			return werr.New(werr.ErrKeychain, "signing message", err)
		}
		data.MessageSig = fn.Some(sig)
	}

	s.ParticipantData = append(s.ParticipantData, data)
	return nil
}

// FillRound1 adds the participant's public data. The initiator also picks
// the transaction offset and removes it from its excess key, so ctx must be
// stored after this call.
func (s *Slate) FillRound1(ctx *participant.Context,
	message fn.Option[string]) error {

	if ctx.Role.IsInitiator() && s.Tx.Offset.IsZero() {
		if err := s.generateOffset(ctx); err != nil {
			return err
		}
	}
	return s.AddParticipantInfo(ctx, message)
}

func (s *Slate) generateOffset(ctx *participant.Context) error {
	offset, err := commit.RandomBlindingFactor(randReader)
	if err != nil {
		return werr.New(werr.ErrKeychain, "generating offset", err)
	}
	secKey, err := commit.NewBlindSum().Add(ctx.SecKey).Sub(offset).Sum()
	if err != nil {
		return werr.New(werr.ErrKeychain, "adjusting excess key", err)
	}
	ctx.SecKey = secKey
	s.Tx.Offset = offset
	return nil
}

// contributions returns the aggregator view of the participant entries.
func (s *Slate) contributions() []aggsig.Contribution {
	contribs := make([]aggsig.Contribution, 0, len(s.ParticipantData))
	for _, p := range s.ParticipantData {
		contribs = append(contribs, aggsig.Contribution{
			ID:           p.ID,
			PublicNonce:  p.PublicNonce,
			PublicExcess: p.PublicBlindExcess,
			PartSig:      p.PartSig.UnwrapOr(aggsig.Signature{}),
		})
	}
	return contribs
}

// requireFull fails with ErrParticipantCount unless every participant has
// added its public data.
func (s *Slate) requireFull() error {
	if !s.IsFull() {
		return werr.Newf(werr.ErrParticipantCount,
			"slate holds %d of %d participants",
			len(s.ParticipantData), s.NumParticipants)
	}
	return nil
}

// ownEntry returns the entry for ctx, checking it still carries the excess
// ctx produced.
func (s *Slate) ownEntry(ctx *participant.Context) (*ParticipantData, error) {
	p, ok := s.Participant(ctx.ParticipantID)
	if !ok {
		return nil, werr.ForParticipant(werr.ErrProtocolViolation,
			ctx.ParticipantID, "own entry missing from slate", nil)
	}

	pubExcess, err := ctx.PublicBlindExcess()
	if err != nil {
		return nil, werr.New(werr.ErrKeychain, "public excess", err)
	}
	pubNonce, err := ctx.PublicNonce()
	if err != nil {
		return nil, werr.New(werr.ErrKeychain, "public nonce", err)
	}
	if !p.PublicBlindExcess.IsEqual(pubExcess) ||
		!p.PublicNonce.IsEqual(pubNonce) {

		return nil, werr.ForParticipant(werr.ErrProtocolViolation,
			ctx.ParticipantID, "public data differs from context", nil)
	}
	return p, nil
}

// FillRound2 verifies the partial signatures already on the slate and adds
// this participant's own. Every participant must have added its public data
// first, and the fee must cover the body at baseFee.
func (s *Slate) FillRound2(ctx *participant.Context, baseFee uint64) error {
	if err := s.requireFull(); err != nil {
		return err
	}
	own, err := s.ownEntry(ctx)
	if err != nil {
		return err
	}
	if own.IsComplete() {
		return werr.ForParticipant(werr.ErrResubmission, ctx.ParticipantID,
			"partial signature already present", nil)
	}
	if err := s.VerifyFees(baseFee); err != nil {
		return err
	}
	if err := s.VerifyPartialSigs(); err != nil {
		return err
	}

	nonceSum, pubKeySum, err := aggsig.Sums(s.contributions())
	if err != nil {
		return werr.New(werr.ErrInvalidSlate, "summing public data", err)
	}

	secKey, err := ctx.SecKey.Scalar()
	if err != nil {
		return werr.New(werr.ErrKeychain, "excess key", err)
	}
	defer secKey.Zero()
	secNonce, err := ctx.SecNonce.Scalar()
	if err != nil {
		return werr.New(werr.ErrKeychain, "nonce", err)
	}
	defer secNonce.Zero()

	sig, err := aggsig.CalculatePartialSig(
		&secKey, &secNonce, nonceSum, pubKeySum, s.MsgToSign(),
	)
	if err != nil {
		return werr.ForParticipant(werr.ErrInvalidPartialSignature,
			ctx.ParticipantID, "signing", err)
	}
	own.PartSig = fn.Some(sig)
	return nil
}

// VerifyPartialSigs checks every partial signature present on the slate.
// Entries without one are skipped.
func (s *Slate) VerifyPartialSigs() error {
	nonceSum, pubKeySum, err := aggsig.Sums(s.contributions())
	if err != nil {
		return werr.New(werr.ErrInvalidSlate, "summing public data", err)
	}

	msg := s.MsgToSign()
	for _, p := range s.ParticipantData {
		sig, ok := unpack(p.PartSig)
		if !ok {
			continue
		}
		err := aggsig.VerifyPartialSig(
			sig, p.PublicNonce, p.PublicBlindExcess, nonceSum,
			pubKeySum, msg,
		)
		if err != nil {
			return werr.ForParticipant(
				werr.ErrInvalidPartialSignature, p.ID,
				"partial signature does not verify", err,
			)
		}
	}
	return nil
}

// VerifyMessages checks the signature on every participant message. All
// failures are reported, each naming its participant.
func (s *Slate) VerifyMessages() error {
	var errs []error
	for _, p := range s.ParticipantData {
		msg, ok := unpack(p.Message)
		if !ok {
			continue
		}
		sig, ok := unpack(p.MessageSig)
		if !ok {
			errs = append(errs, werr.ForParticipant(
				werr.ErrInvalidSlateMessage, p.ID,
				"message is unsigned", nil,
			))
			continue
		}
		if err := aggsig.Verify(sig, p.PublicBlindExcess,
			messageHash(msg)); err != nil {

			errs = append(errs, werr.ForParticipant(
				werr.ErrInvalidSlateMessage, p.ID,
				"message signature does not verify", err,
			))
		}
	}
	return errors.Join(errs...)
}

// VerifyFees checks that the slate fee covers the current body at baseFee
// and does not exceed the amount being moved.
func (s *Slate) VerifyFees(baseFee uint64) error {
	body := s.Tx.Body
	need := core.TxFee(
		len(body.Inputs), len(body.Outputs), len(body.Kernels), baseFee,
	)
	if s.Fee < need {
		return werr.Newf(werr.ErrInvalidSlate,
			"fee %d below the %d required for %d inputs and %d "+
				"outputs", s.Fee, need, len(body.Inputs),
			len(body.Outputs))
	}
	if s.Fee > s.Amount {
		return werr.Newf(werr.ErrInvalidSlate,
			"fee %d exceeds amount %d", s.Fee, s.Amount)
	}
	return nil
}

// Finalize aggregates the partial signatures into the kernel signature and
// validates the resulting transaction. The slate is left unchanged on
// failure.
func (s *Slate) Finalize(ctx context.Context) error {
	if err := s.requireFull(); err != nil {
		return err
	}

	agg, err := aggsig.AggregateSignatures(s.contributions(), s.MsgToSign())
	if err != nil {
		return err
	}

	tx := s.Tx.Copy()
	k := tx.Kernel()
	k.Fee = s.Fee
	k.LockHeight = s.LockHeight
	k.Excess = commit.FromPublicKey(agg.PubKeySum)
	k.ExcessSig = agg.Signature
	tx.Sort()

	if err := tx.Validate(ctx); err != nil {
		return err
	}

	s.Tx = tx
	return nil
}
