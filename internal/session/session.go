package session

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"

	"github.com/nexusbridge/swaporch/internal/storage"
	"github.com/nexusbridge/swaporch/pkg/errkind"
	"github.com/nexusbridge/swaporch/pkg/helpers"
	"github.com/nexusbridge/swaporch/pkg/logging"
)

var log = logging.Component("session")

// CompletionMode controls who drives the A-side withdraw once the secret is
// public on B.
type CompletionMode string

const (
	// ModeExecutorCompletesBoth: the executor itself submits the A-side
	// withdraw as soon as it observes the secret on B.
	ModeExecutorCompletesBoth CompletionMode = "executor_completes_both"
	// ModeClientCompletesA: an external caller is responsible for the
	// A-side withdraw; the executor only tracks completion.
	ModeClientCompletesA CompletionMode = "client_completes_a"
)

// Timelocks holds the seven values of session timing, each an absolute
// instant derived at creation time.
type Timelocks struct {
	SrcDeployedAt       time.Time `json:"srcDeployedAt"`
	SrcWithdrawal       time.Time `json:"srcWithdrawal"`
	SrcPublicWithdrawal time.Time `json:"srcPublicWithdrawal"`
	SrcCancellation     time.Time `json:"srcCancellation"`
	DstDeployedAt       time.Time `json:"dstDeployedAt"`
	DstWithdrawal       time.Time `json:"dstWithdrawal"`
	DstCancellation     time.Time `json:"dstCancellation"`
}

// Validate enforces the cross-chain safety margin.
func (t Timelocks) Validate() error {
	if !t.DstCancellation.Before(t.SrcWithdrawal) {
		return fmt.Errorf("%w: dstCancellation (%s) must precede srcWithdrawal (%s)",
			errkind.ErrValidation, t.DstCancellation, t.SrcWithdrawal)
	}
	return nil
}

// Session is the central swap entity.
type Session struct {
	ID                string
	Status            State
	SourceChain       string
	DestinationChain  string
	SourceToken       string
	DestinationToken  string
	SourceAmount      *big.Int
	DestinationAmount *big.Int
	Maker             string
	Taker             string
	SlippageBPS       int
	Hashlock          [32]byte
	OrderHash         [32]byte
	SrcEscrowAddress  string
	DstHTLCHandle     string
	CompletionMode    CompletionMode
	Timelocks         Timelocks
	CreatedAt         time.Time
	UpdatedAt         time.Time
	ExpirationTime    time.Time
}

// CreateParams are the caller-supplied inputs to Create.
type CreateParams struct {
	SourceChain       string
	DestinationChain  string
	SourceToken       string
	DestinationToken  string
	SourceAmount      *big.Int
	DestinationAmount *big.Int
	Maker             string
	Taker             string
	SlippageBPS       int
	CompletionMode    CompletionMode
}

// secretSealer is the subset of SecretStore's API the session store needs;
// accepting an interface here keeps the two packages decoupled.
type secretSealer interface {
	Generate() (secret [32]byte, hashlock [32]byte, err error)
	Reveal(hashlock [32]byte) ([32]byte, error)
}

// Store is SessionStore: authoritative state for all sessions, indexed
// access, and transition validation.
type Store struct {
	storage   *storage.Storage
	secrets   secretSealer
	maxActive int
	timelockCfg TimelockOffsets
}

// TimelockOffsets seeds Timelocks.Validate-compliant durations relative to
// session creation time.
type TimelockOffsets struct {
	SrcWithdrawalOffset       time.Duration
	SrcPublicWithdrawalOffset time.Duration
	SrcCancellationOffset     time.Duration
	DstWithdrawalOffset       time.Duration
	DstCancellationOffset     time.Duration
	DeployedBackdate          time.Duration
}

// NewStore constructs a SessionStore.
func NewStore(store *storage.Storage, secrets secretSealer, maxActive int, offsets TimelockOffsets) *Store {
	return &Store{storage: store, secrets: secrets, maxActive: maxActive, timelockCfg: offsets}
}

// Create allocates a session id, a secret/hashlock pair, derives orderHash,
// seeds timelocks, and persists the session at status initialized.
func (s *Store) Create(params CreateParams) (*Session, error) {
	active, err := s.storage.CountActive(TerminalStates())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errkind.ErrInternal, err)
	}
	if active >= s.maxActive {
		return nil, fmt.Errorf("%w: %d active sessions at limit %d", errkind.ErrCapacityExceeded, active, s.maxActive)
	}

	_, hashlock, err := s.secrets.Generate()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	id := uuid.NewString()
	orderHash := helpers.Keccak256([]byte(id), []byte(params.Maker), []byte(params.Taker))

	timelocks := Timelocks{
		SrcDeployedAt:       now.Add(-s.timelockCfg.DeployedBackdate),
		SrcWithdrawal:       now.Add(s.timelockCfg.SrcWithdrawalOffset),
		SrcPublicWithdrawal: now.Add(s.timelockCfg.SrcPublicWithdrawalOffset),
		SrcCancellation:     now.Add(s.timelockCfg.SrcCancellationOffset),
		DstDeployedAt:       now.Add(-s.timelockCfg.DeployedBackdate),
		DstWithdrawal:       now.Add(s.timelockCfg.DstWithdrawalOffset),
		DstCancellation:     now.Add(s.timelockCfg.DstCancellationOffset),
	}
	if err := timelocks.Validate(); err != nil {
		return nil, err
	}

	mode := params.CompletionMode
	if mode == "" {
		mode = ModeExecutorCompletesBoth
	}

	sess := &Session{
		ID:                id,
		Status:            StateInitialized,
		SourceChain:       params.SourceChain,
		DestinationChain:  params.DestinationChain,
		SourceToken:       params.SourceToken,
		DestinationToken:  params.DestinationToken,
		SourceAmount:      params.SourceAmount,
		DestinationAmount: params.DestinationAmount,
		Maker:             params.Maker,
		Taker:             params.Taker,
		SlippageBPS:       params.SlippageBPS,
		Hashlock:          hashlock,
		OrderHash:         orderHash,
		CompletionMode:    mode,
		Timelocks:         timelocks,
		CreatedAt:         now,
		UpdatedAt:         now,
		ExpirationTime:    timelocks.SrcCancellation.Add(24 * time.Hour),
	}

	rec, err := toRecord(sess)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errkind.ErrInternal, err)
	}
	if err := s.storage.CreateSession(rec); err != nil {
		if err == storage.ErrOrderHashExists {
			return nil, fmt.Errorf("%w: order hash collision", errkind.ErrValidation)
		}
		return nil, fmt.Errorf("%w: %v", errkind.ErrInternal, err)
	}

	log.Info("session created", "id", sess.ID, "source_chain", sess.SourceChain, "destination_chain", sess.DestinationChain)
	return sess, nil
}

// Get retrieves a session by id.
func (s *Store) Get(id string) (*Session, error) {
	rec, err := s.storage.GetSession(id)
	if err != nil {
		if err == storage.ErrSessionNotFound {
			return nil, fmt.Errorf("%w: session %s", errkind.ErrNotFound, id)
		}
		return nil, fmt.Errorf("%w: %v", errkind.ErrInternal, err)
	}
	return fromRecord(rec)
}

// GetByOrderHash retrieves a session by its orderHash.
func (s *Store) GetByOrderHash(orderHash [32]byte) (*Session, error) {
	rec, err := s.storage.GetSessionByOrderHash(hex.EncodeToString(orderHash[:]))
	if err != nil {
		if err == storage.ErrSessionNotFound {
			return nil, fmt.Errorf("%w: order hash %x", errkind.ErrNotFound, orderHash[:4])
		}
		return nil, fmt.Errorf("%w: %v", errkind.ErrInternal, err)
	}
	return fromRecord(rec)
}

// List returns sessions, optionally filtered by status ("" for all).
func (s *Store) List(status State) ([]*Session, error) {
	recs, err := s.storage.ListSessions(string(status))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errkind.ErrInternal, err)
	}
	out := make([]*Session, 0, len(recs))
	for _, rec := range recs {
		sess, err := fromRecord(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, nil
}

// Transition validates and persists a status change.
func (s *Store) Transition(id string, newStatus State) error {
	sess, err := s.Get(id)
	if err != nil {
		return err
	}
	if err := Validate(sess.Status, newStatus); err != nil {
		return fmt.Errorf("%w: %v", errkind.ErrIllegalTransition, err)
	}
	if err := s.storage.UpdateStatus(id, string(newStatus), time.Now()); err != nil {
		return fmt.Errorf("%w: %v", errkind.ErrInternal, err)
	}
	log.Info("session transitioned", "id", id, "from", sess.Status, "to", newStatus)
	return nil
}

// Side identifies which escrow handle AttachEscrow is setting.
type Side string

const (
	SideSource      Side = "src"
	SideDestination Side = "dst"
)

// AttachEscrow one-time-sets the escrow handle for the given side.
func (s *Store) AttachEscrow(id string, side Side, ref string) error {
	var err error
	switch side {
	case SideSource:
		err = s.storage.AttachSrcEscrow(id, ref, time.Now())
	case SideDestination:
		err = s.storage.AttachDstHTLC(id, ref, time.Now())
	default:
		return fmt.Errorf("%w: unknown side %q", errkind.ErrValidation, side)
	}
	if err != nil {
		if err == storage.ErrSessionNotFound {
			return fmt.Errorf("%w: session %s", errkind.ErrNotFound, id)
		}
		return fmt.Errorf("%w: %v", errkind.ErrInternal, err)
	}
	return nil
}

// Fail records a terminal failure reason and transitions to failed.
func (s *Store) Fail(id string, reason error) error {
	if err := s.Transition(id, StateFailed); err != nil {
		return err
	}
	return s.storage.SetFailureReason(id, reason.Error(), time.Now())
}

// Reveal loads sessionID's hashlock and delegates to the secret store's
// one-time reveal, rather than something callers reach past the session
// store for.
func (s *Store) Reveal(sessionID string) ([32]byte, error) {
	sess, err := s.Get(sessionID)
	if err != nil {
		var zero [32]byte
		return zero, err
	}
	return s.secrets.Reveal(sess.Hashlock)
}

// Sweep deletes terminal sessions past their expirationTime.
func (s *Store) Sweep() (int64, error) {
	n, err := s.storage.DeleteExpiredTerminal(TerminalStates(), time.Now())
	if err != nil {
		return 0, fmt.Errorf("%w: %v", errkind.ErrInternal, err)
	}
	if n > 0 {
		log.Info("swept expired sessions", "count", n)
	}
	return n, nil
}

func toRecord(s *Session) (*storage.SessionRecord, error) {
	timelocksJSON, err := json.Marshal(s.Timelocks)
	if err != nil {
		return nil, err
	}
	srcAmount := "0"
	if s.SourceAmount != nil {
		srcAmount = s.SourceAmount.String()
	}
	dstAmount := "0"
	if s.DestinationAmount != nil {
		dstAmount = s.DestinationAmount.String()
	}
	return &storage.SessionRecord{
		ID:                s.ID,
		Status:            string(s.Status),
		SourceChain:       s.SourceChain,
		DestinationChain:  s.DestinationChain,
		SourceToken:       s.SourceToken,
		DestinationToken:  s.DestinationToken,
		SourceAmount:      srcAmount,
		DestinationAmount: dstAmount,
		Maker:             s.Maker,
		Taker:             s.Taker,
		SlippageBPS:       s.SlippageBPS,
		Hashlock:          hex.EncodeToString(s.Hashlock[:]),
		OrderHash:         hex.EncodeToString(s.OrderHash[:]),
		SrcEscrowAddress:  s.SrcEscrowAddress,
		DstHTLCHandle:     s.DstHTLCHandle,
		CompletionMode:    string(s.CompletionMode),
		TimelocksJSON:     string(timelocksJSON),
		CreatedAt:         s.CreatedAt,
		UpdatedAt:         s.UpdatedAt,
		ExpirationTime:    s.ExpirationTime,
	}, nil
}

func fromRecord(rec *storage.SessionRecord) (*Session, error) {
	var timelocks Timelocks
	if err := json.Unmarshal([]byte(rec.TimelocksJSON), &timelocks); err != nil {
		return nil, fmt.Errorf("%w: decode timelocks: %v", errkind.ErrInternal, err)
	}

	hashlock, err := decode32(rec.Hashlock)
	if err != nil {
		return nil, fmt.Errorf("%w: decode hashlock: %v", errkind.ErrInternal, err)
	}
	orderHash, err := decode32(rec.OrderHash)
	if err != nil {
		return nil, fmt.Errorf("%w: decode order hash: %v", errkind.ErrInternal, err)
	}

	srcAmount, ok := new(big.Int).SetString(rec.SourceAmount, 10)
	if !ok {
		return nil, fmt.Errorf("%w: invalid source amount %q", errkind.ErrInternal, rec.SourceAmount)
	}
	dstAmount, ok := new(big.Int).SetString(rec.DestinationAmount, 10)
	if !ok {
		return nil, fmt.Errorf("%w: invalid destination amount %q", errkind.ErrInternal, rec.DestinationAmount)
	}

	return &Session{
		ID:                rec.ID,
		Status:            State(rec.Status),
		SourceChain:       rec.SourceChain,
		DestinationChain:  rec.DestinationChain,
		SourceToken:       rec.SourceToken,
		DestinationToken:  rec.DestinationToken,
		SourceAmount:      srcAmount,
		DestinationAmount: dstAmount,
		Maker:             rec.Maker,
		Taker:             rec.Taker,
		SlippageBPS:       rec.SlippageBPS,
		Hashlock:          hashlock,
		OrderHash:         orderHash,
		SrcEscrowAddress:  rec.SrcEscrowAddress,
		DstHTLCHandle:     rec.DstHTLCHandle,
		CompletionMode:    CompletionMode(rec.CompletionMode),
		Timelocks:         timelocks,
		CreatedAt:         rec.CreatedAt,
		UpdatedAt:         rec.UpdatedAt,
		ExpirationTime:    rec.ExpirationTime,
	}, nil
}

func decode32(s string) ([32]byte, error) {
	var out [32]byte
	b, err := hex.DecodeString(s)
	if err != nil {
		return out, err
	}
	if len(b) != 32 {
		return out, fmt.Errorf("expected 32 bytes, got %d", len(b))
	}
	copy(out[:], b)
	return out, nil
}
