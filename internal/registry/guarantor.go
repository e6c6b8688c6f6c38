// Package registry guarantees ledger registration before any operation
// that requires it. Registration happens at most once per address: a keyed
// lock serializes concurrent attempts for the same address, and a
// duplicate-registration revert is absorbed when the ledger already shows
// the address as registered.
package registry

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/learnledger/backend/internal/chain"
	"github.com/learnledger/backend/internal/errors"
	"github.com/learnledger/backend/internal/logging"
	"github.com/learnledger/backend/internal/orchestrator"
)

// Ledger is the registration surface of the course contract.
type Ledger interface {
	IsRegistered(ctx context.Context, address common.Address) (bool, error)
	RegisterCall() ([]byte, error)
	Address() common.Address
}

// Guarantor ensures an address is registered on the ledger, registering it
// on first use.
type Guarantor struct {
	ledger    Ledger
	submitter orchestrator.Submitter
	logger    *logging.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewGuarantor creates a registration guarantor.
func NewGuarantor(ledger Ledger, submitter orchestrator.Submitter, logger *logging.Logger) *Guarantor {
	if logger == nil {
		logger = logging.New("registry", "info", "json")
	}
	return &Guarantor{
		ledger:    ledger,
		submitter: submitter,
		logger:    logger,
		locks:     make(map[string]*sync.Mutex),
	}
}

// EnsureRegistered returns once address is registered on the ledger,
// submitting a registration when needed. Concurrent calls for the same
// address collapse into a single registration.
func (g *Guarantor) EnsureRegistered(ctx context.Context, address common.Address) error {
	lock := g.lockFor(address)
	lock.Lock()
	defer lock.Unlock()

	registered, err := g.ledger.IsRegistered(ctx, address)
	if err != nil {
		return errors.ChainUnavailable(err)
	}
	if registered {
		return nil
	}

	data, err := g.ledger.RegisterCall()
	if err != nil {
		return errors.Internal("build registration calldata", err)
	}

	pending, err := g.submitter.Submit(ctx, orchestrator.Operation{
		Kind: orchestrator.OpRegister,
		To:   g.ledger.Address(),
		Data: data,
	})
	if err != nil {
		return errors.ChainUnavailable(err)
	}

	if _, err := pending.Await(ctx); err != nil {
		// A revert can mean another path registered the address between our
		// read and the execution. Re-read and absorb the failure when the
		// ledger shows the registration in place.
		if chainErr := chain.AsError(err); chainErr != nil && chainErr.Kind == chain.KindReverted {
			registered, readErr := g.ledger.IsRegistered(ctx, address)
			if readErr == nil && registered {
				g.logger.WithContext(ctx).WithFields(map[string]interface{}{
					"address": address.Hex(),
				}).Info("registration raced, already registered")
				return nil
			}
		}
		return errors.RegistrationFailed(err)
	}

	// Confirm against the ledger rather than trusting the receipt alone.
	registered, err = g.ledger.IsRegistered(ctx, address)
	if err != nil {
		return errors.ChainUnavailable(err)
	}
	if !registered {
		return errors.RegistrationFailed(nil).
			WithDetails("reason", "registration finalized but ledger still shows unregistered")
	}

	g.logger.WithContext(ctx).WithFields(map[string]interface{}{
		"address": address.Hex(),
	}).Info("address registered")
	return nil
}

func (g *Guarantor) lockFor(address common.Address) *sync.Mutex {
	key := address.Hex()

	g.mu.Lock()
	defer g.mu.Unlock()
	lock, ok := g.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		g.locks[key] = lock
	}
	return lock
}
