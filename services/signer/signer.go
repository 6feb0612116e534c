package signer

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/zeroknots/lazyaccount/models"
	errs "github.com/zeroknots/lazyaccount/models/errors"
)

// Signer produces the signature of a user operation. Keys are held outside of
// this program, so implementations delegate to an external party.
type Signer interface {
	SignUserOperation(
		ctx context.Context,
		op *models.PackedUserOperation,
		entryPoint common.Address,
	) ([]byte, error)
}

var (
	_ Signer = Static(nil)
	_ Signer = Unsigned{}
)

// Static attaches a signature that was produced ahead of time.
type Static []byte

func (s Static) SignUserOperation(context.Context, *models.PackedUserOperation, common.Address) ([]byte, error) {
	if len(s) == 0 {
		return nil, fmt.Errorf("%w: empty signature", errs.ErrInvalid)
	}
	return common.CopyBytes(s), nil
}

// Unsigned leaves the signature empty.
type Unsigned struct{}

func (Unsigned) SignUserOperation(context.Context, *models.PackedUserOperation, common.Address) ([]byte, error) {
	return []byte{}, nil
}
