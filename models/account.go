package models

import (
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"gopkg.in/yaml.v3"

	errs "github.com/zeroknots/lazyaccount/models/errors"
)

// AccountInitParams are the caller supplied inputs of a counterfactual
// Safe7579 account. The same params always produce the same account address.
type AccountInitParams struct {
	Salt       common.Hash      `json:"salt" yaml:"salt"`
	Owners     []common.Address `json:"owners" yaml:"owners"`
	Validators []common.Address `json:"validators" yaml:"validators"`
}

func (p AccountInitParams) Validate() error {
	if len(p.Owners) == 0 {
		return fmt.Errorf("%w: at least one owner is required", errs.ErrInvalid)
	}
	if len(p.Validators) == 0 {
		return errs.ErrValidatorNotFound
	}
	return nil
}

// DeploymentPlan is the result of planning a counterfactual account.
type DeploymentPlan struct {
	// PredictedAddress is the address the account will have once deployed.
	PredictedAddress common.Address `json:"predictedAddress"`
	// FactoryAddress is the Safe proxy factory deploying the account.
	FactoryAddress common.Address `json:"factoryAddress"`
	// FactoryCallData is the ABI encoded {factory, data} struct.
	FactoryCallData hexutil.Bytes `json:"factoryCallData"`
	// ProxyCallData is the createProxyWithNonce call passed to the factory.
	ProxyCallData hexutil.Bytes `json:"proxyCallData"`
	// InitHash is the launchpad hash of the account init data.
	InitHash common.Hash `json:"initHash"`
	// SetupCallData is the launchpad setupSafe call executed by the first operation.
	SetupCallData hexutil.Bytes `json:"setupCallData"`
}

// LoadAccountInitFile reads account init params from a YAML file.
func LoadAccountInitFile(path string) (AccountInitParams, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return AccountInitParams{}, fmt.Errorf("could not read account file %s: %w", path, err)
	}

	var params AccountInitParams
	if err := yaml.Unmarshal(data, &params); err != nil {
		return AccountInitParams{}, fmt.Errorf("could not parse account file %s: %w", path, err)
	}

	if err := params.Validate(); err != nil {
		return AccountInitParams{}, err
	}

	return params, nil
}
