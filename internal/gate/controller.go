// Package gate is the state machine tying wallet sessions to which payload,
// teaser or full story, a request is allowed to see.
package gate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/skovald/storyteller/internal/payment"
	"github.com/skovald/storyteller/internal/storage"
	"github.com/skovald/storyteller/internal/story"
	"github.com/skovald/storyteller/internal/topic"
	"github.com/skovald/storyteller/internal/tts"
)

const explorerBaseURL = "https://testnet.arcscan.app/tx/"

// State of a wallet's session.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnected    State = "connected"
	StateStoryReady   State = "story_ready"
	StateUnlocked     State = "unlocked"
)

var (
	ErrInvalidAddress = errors.New("invalid wallet address")
	ErrNotConnected   = errors.New("wallet not connected")
	ErrNoStory        = errors.New("no story generated yet")
)

// StoryGenerator produces a full story for a topic.
type StoryGenerator interface {
	Generate(ctx context.Context, topic string) (string, bool)
}

// AudioSynthesizer renders best-effort audio for a text.
type AudioSynthesizer interface {
	Synthesize(ctx context.Context, text, filename string) tts.Result
}

// PaymentService is the orchestrator surface the gate drives.
type PaymentService interface {
	ValidateAddress(input string) (string, bool)
	BuildTip(ctx context.Context, wallet string) (*payment.TxRequest, string, error)
	RecordPending(wallet string, tx *payment.TxRequest) error
	Confirm(ctx context.Context, wallet, txHash string) (bool, string, error)
}

// UnlockHandler is invoked after a tip confirmation unlocks a session.
type UnlockHandler func(ctx context.Context, wallet, txHash string)

// Controller walks sessions through connect, story, tip, and unlock.
// The per-wallet lock is held only around store mutations; story generation,
// synthesis, and chain calls all run outside it.
type Controller struct {
	storage  *storage.Storage
	locks    *storage.Locks
	stories  StoryGenerator
	audio    AudioSynthesizer
	payments PaymentService
	onUnlock UnlockHandler
	log      *slog.Logger
}

// New creates a new Controller. onUnlock may be nil.
func New(store *storage.Storage, locks *storage.Locks, stories StoryGenerator, audio AudioSynthesizer, payments PaymentService, onUnlock UnlockHandler, log *slog.Logger) *Controller {
	return &Controller{
		storage:  store,
		locks:    locks,
		stories:  stories,
		audio:    audio,
		payments: payments,
		onUnlock: onUnlock,
		log:      log,
	}
}

// TopicResult is the outcome of a topic submission.
type TopicResult struct {
	Teaser       string
	AudioPath    string
	UsedFallback bool
}

// ConfirmResult is the outcome of a granted tip confirmation.
type ConfirmResult struct {
	FullStory string
	AudioPath string
	Explorer  string
}

// Connect validates a wallet address and creates its session. Reconnecting
// an already known wallet keeps its story and unlock state.
func (c *Controller) Connect(wallet string) (string, error) {
	checksum, ok := c.payments.ValidateAddress(wallet)
	if !ok {
		return "", ErrInvalidAddress
	}

	c.locks.Lock(checksum)
	defer c.locks.Unlock(checksum)

	if err := c.storage.ConnectSession(checksum); err != nil {
		return "", fmt.Errorf("connect session: %w", err)
	}

	c.log.Info("wallet connected", "wallet", checksum)
	return checksum, nil
}

// StateOf derives the session state for a wallet.
func (c *Controller) StateOf(wallet string) State {
	checksum, ok := c.payments.ValidateAddress(wallet)
	if !ok {
		return StateDisconnected
	}

	sess, err := c.storage.GetSession(checksum)
	if err != nil {
		return StateDisconnected
	}

	switch {
	case sess.FullStory == "":
		return StateConnected
	case sess.Unlocked:
		return StateUnlocked
	default:
		return StateStoryReady
	}
}

// SubmitTopic generates a story for the wallet and stores it locked. A new
// topic always re-locks the session, even from Unlocked.
func (c *Controller) SubmitTopic(ctx context.Context, wallet, message string) (*TopicResult, error) {
	checksum, err := c.resolveSession(wallet)
	if err != nil {
		return nil, err
	}

	normalized := topic.Normalize(message)
	c.log.Info("story requested", "wallet", checksum, "topic", normalized)

	fullStory, usedFallback := c.stories.Generate(ctx, normalized)
	teaser := story.Teaser(fullStory)

	c.locks.Lock(checksum)
	err = c.storage.SetStory(checksum, fullStory)
	c.locks.Unlock(checksum)
	if err != nil {
		return nil, fmt.Errorf("set story: %w", err)
	}

	audio := c.audio.Synthesize(ctx, teaser, teaserFilename(checksum))

	return &TopicResult{
		Teaser:       teaser,
		AudioPath:    audio.Path,
		UsedFallback: usedFallback,
	}, nil
}

// RequestTip builds the unsigned tip transaction for the wallet's current
// story. The session state is unchanged; the descriptor goes back to the
// caller for signing.
func (c *Controller) RequestTip(ctx context.Context, wallet string) (*payment.TxRequest, string, error) {
	checksum, err := c.resolveSession(wallet)
	if err != nil {
		return nil, "", err
	}

	sess, err := c.storage.GetSession(checksum)
	if err != nil {
		return nil, "", fmt.Errorf("get session: %w", err)
	}
	if sess.FullStory == "" {
		return nil, "", ErrNoStory
	}

	tx, reason, err := c.payments.BuildTip(ctx, checksum)
	if err != nil {
		return nil, "", err
	}
	if tx == nil {
		return nil, reason, nil
	}

	c.locks.Lock(checksum)
	err = c.payments.RecordPending(checksum, tx)
	c.locks.Unlock(checksum)
	if err != nil {
		return nil, "", err
	}

	return tx, "", nil
}

// ConfirmTransaction checks the reported hash with the payment orchestrator
// and, when granted, releases the full story with best-effort audio.
func (c *Controller) ConfirmTransaction(ctx context.Context, wallet, txHash string) (*ConfirmResult, string, error) {
	checksum, err := c.resolveSession(wallet)
	if err != nil {
		return nil, "", err
	}

	granted, reason, err := c.payments.Confirm(ctx, checksum, txHash)
	if err != nil {
		return nil, "", err
	}
	if !granted {
		return nil, reason, nil
	}

	sess, err := c.storage.GetSession(checksum)
	if err != nil {
		return nil, "", fmt.Errorf("get session: %w", err)
	}

	audio := c.audio.Synthesize(ctx, sess.FullStory, fullFilename(checksum))

	if c.onUnlock != nil {
		c.onUnlock(ctx, checksum, txHash)
	}

	return &ConfirmResult{
		FullStory: sess.FullStory,
		AudioPath: audio.Path,
		Explorer:  explorerBaseURL + txHash,
	}, "", nil
}

// resolveSession maps an incoming wallet string to its checksum form and
// verifies a session exists.
func (c *Controller) resolveSession(wallet string) (string, error) {
	checksum, ok := c.payments.ValidateAddress(wallet)
	if !ok {
		return "", ErrNotConnected
	}

	if _, err := c.storage.GetSession(checksum); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", ErrNotConnected
		}
		return "", fmt.Errorf("get session: %w", err)
	}

	return checksum, nil
}

// Audio filenames are per wallet so concurrent sessions do not overwrite
// each other's files.
func teaserFilename(wallet string) string {
	return "teaser_" + walletTag(wallet) + ".mp3"
}

func fullFilename(wallet string) string {
	return "full_" + walletTag(wallet) + ".mp3"
}

func walletTag(wallet string) string {
	tag := wallet
	if len(tag) > 10 {
		tag = tag[2:10]
	}
	return tag
}
