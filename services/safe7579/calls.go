package safe7579

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// ModuleInit is a module address with the data passed to its onInstall hook.
type ModuleInit struct {
	Module   common.Address
	InitData []byte
}

// EmptyModuleInit fills module slots that are not used at deployment time.
var EmptyModuleInit = ModuleInit{Module: common.Address{}, InitData: []byte{}}

// InitData is the launchpad aggregate describing a Safe7579 account.
type InitData struct {
	Singleton  common.Address
	Owners     []common.Address
	Threshold  *big.Int
	SetupTo    common.Address
	SetupData  []byte
	Safe7579   common.Address
	Validators []ModuleInit
	CallData   []byte
}

type packedFactoryCall struct {
	Factory common.Address
	Data    []byte
}

// ValidatorModules wraps every validator in a ModuleInit with empty init data.
func ValidatorModules(validators []common.Address) []ModuleInit {
	modules := make([]ModuleInit, len(validators))
	for i, v := range validators {
		modules[i] = ModuleInit{Module: v, InitData: []byte{}}
	}
	return modules
}

// EncodeInitSafe7579 builds the launchpad setup call: empty executor, fallback
// and hook placeholders, the owners as attesters and an attester threshold of 1.
func EncodeInitSafe7579(safe7579 common.Address, owners []common.Address) ([]byte, error) {
	data, err := launchpadABIParsed.Pack(
		"initSafe7579",
		safe7579,
		[]ModuleInit{EmptyModuleInit},
		[]ModuleInit{EmptyModuleInit},
		[]ModuleInit{EmptyModuleInit},
		owners,
		uint8(1),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to encode initSafe7579: %w", err)
	}
	return data, nil
}

func EncodeHash(initData InitData) ([]byte, error) {
	data, err := launchpadABIParsed.Pack("hash", initData)
	if err != nil {
		return nil, fmt.Errorf("failed to encode hash: %w", err)
	}
	return data, nil
}

func DecodeHash(ret []byte) (common.Hash, error) {
	values, err := launchpadABIParsed.Unpack("hash", ret)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to unpack hash result: %w", err)
	}
	initHash, ok := values[0].([32]byte)
	if !ok {
		return common.Hash{}, fmt.Errorf("unexpected hash result type %T", values[0])
	}
	return initHash, nil
}

// EncodeSetupSafe builds the call the first user operation makes on the
// launchpad to finish the account setup.
func EncodeSetupSafe(initData InitData) ([]byte, error) {
	data, err := launchpadABIParsed.Pack("setupSafe", initData)
	if err != nil {
		return nil, fmt.Errorf("failed to encode setupSafe: %w", err)
	}
	return data, nil
}

func EncodePreValidationSetup(initHash common.Hash, to common.Address, preInit []byte) ([]byte, error) {
	if preInit == nil {
		preInit = []byte{}
	}
	data, err := launchpadABIParsed.Pack("preValidationSetup", initHash, to, preInit)
	if err != nil {
		return nil, fmt.Errorf("failed to encode preValidationSetup: %w", err)
	}
	return data, nil
}

func EncodePredictSafeAddress(
	singleton common.Address,
	factory common.Address,
	creationCode []byte,
	salt common.Hash,
	factoryInitializer []byte,
) ([]byte, error) {
	data, err := launchpadABIParsed.Pack(
		"predictSafeAddress",
		singleton,
		factory,
		creationCode,
		salt,
		factoryInitializer,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to encode predictSafeAddress: %w", err)
	}
	return data, nil
}

func DecodePredictSafeAddress(ret []byte) (common.Address, error) {
	values, err := launchpadABIParsed.Unpack("predictSafeAddress", ret)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to unpack predictSafeAddress result: %w", err)
	}
	addr, ok := values[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("unexpected predictSafeAddress result type %T", values[0])
	}
	return addr, nil
}

func EncodeCreateProxyWithNonce(singleton common.Address, initializer []byte, salt common.Hash) ([]byte, error) {
	data, err := proxyFactoryABIParsed.Pack("createProxyWithNonce", singleton, initializer, salt.Big())
	if err != nil {
		return nil, fmt.Errorf("failed to encode createProxyWithNonce: %w", err)
	}
	return data, nil
}

func EncodeProxyCreationCode() ([]byte, error) {
	data, err := proxyFactoryABIParsed.Pack("proxyCreationCode")
	if err != nil {
		return nil, fmt.Errorf("failed to encode proxyCreationCode: %w", err)
	}
	return data, nil
}

func DecodeProxyCreationCode(ret []byte) ([]byte, error) {
	values, err := proxyFactoryABIParsed.Unpack("proxyCreationCode", ret)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack proxyCreationCode result: %w", err)
	}
	code, ok := values[0].([]byte)
	if !ok {
		return nil, fmt.Errorf("unexpected proxyCreationCode result type %T", values[0])
	}
	return code, nil
}

// EncodePackedFactoryCall ABI encodes the `{factory, data}` struct.
func EncodePackedFactoryCall(factory common.Address, data []byte) ([]byte, error) {
	encoded, err := packedFactoryCallArgs.Pack(packedFactoryCall{Factory: factory, Data: data})
	if err != nil {
		return nil, fmt.Errorf("failed to encode factory call: %w", err)
	}
	return encoded, nil
}
