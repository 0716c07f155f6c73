package plugin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	extism "github.com/extism/go-sdk"

	"github.com/joncooperworks/walletkeys/crypto/encrypter"
	"github.com/joncooperworks/walletkeys/crypto/keystore"
)

// Exported functions of a WASM encrypter module.
const (
	nameFunction       = "name"
	encryptKeyFunction = "encrypt_key"
	decryptKeyFunction = "decrypt_key"
)

func init() {
	RegisterLoader("wasm", func() (Loader, error) {
		return NewWASMLoader()
	})
}

// module is the subset of *extism.Plugin used by WASMEncrypter.
type module interface {
	CallWithContext(ctx context.Context, name string, data []byte) (uint32, []byte, error)
	FunctionExists(name string) bool
	Close(ctx context.Context) error
}

type encryptRequest struct {
	Key      keystore.Key `json:"key"`
	Password string       `json:"password"`
}

type decryptRequest struct {
	EncryptedKey keystore.EncryptedKey `json:"encryptedKey"`
	Password     string                `json:"password"`
}

// WASMLoader loads encrypter plugins with the Extism SDK.
type WASMLoader struct{}

// NewWASMLoader creates a new WASM loader.
func NewWASMLoader() (*WASMLoader, error) {
	return &WASMLoader{}, nil
}

// Load compiles and instantiates a WASM encrypter from raw bytes. The module
// gets WASI but no network access.
func (wl *WASMLoader) Load(ctx context.Context, data []byte, name string) (Encrypter, error) {
	if len(data) == 0 {
		return nil, errors.New("plugin data is empty")
	}

	manifest := extism.Manifest{
		Wasm: []extism.Wasm{
			extism.WasmData{Data: data, Name: name},
		},
	}
	config := extism.PluginConfig{EnableWasi: true}

	p, err := extism.NewPlugin(ctx, manifest, config, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Extism plugin: %w", err)
	}

	enc, err := newWASMEncrypter(ctx, p, name)
	if err != nil {
		_ = p.Close(ctx)
		return nil, err
	}
	return enc, nil
}

// WASMEncrypter is an Encrypter implemented by a WASM module.
//
// Calls into the module are serialized.
type WASMEncrypter struct {
	mu     sync.Mutex
	name   string
	module module
}

func newWASMEncrypter(ctx context.Context, m module, fallbackName string) (*WASMEncrypter, error) {
	for _, fn := range []string{encryptKeyFunction, decryptKeyFunction} {
		if !m.FunctionExists(fn) {
			return nil, fmt.Errorf("WASM encrypter %q must export a %s function", fallbackName, fn)
		}
	}

	we := &WASMEncrypter{name: fallbackName, module: m}
	if m.FunctionExists(nameFunction) {
		out, err := we.call(ctx, nameFunction, nil)
		if err != nil {
			return nil, err
		}
		if len(out) > 0 {
			we.name = string(out)
		}
	}
	if we.name == "" {
		return nil, errors.New("WASM encrypter has no name")
	}
	return we, nil
}

// Name returns the name reported by the module's name export, or the name
// given to the loader when the module does not export one.
func (we *WASMEncrypter) Name() string { return we.name }

func (we *WASMEncrypter) EncryptKey(ctx context.Context, key keystore.Key, password string) (keystore.EncryptedKey, error) {
	input, err := json.Marshal(encryptRequest{Key: key, Password: password})
	if err != nil {
		return keystore.EncryptedKey{}, fmt.Errorf("failed to marshal encrypt request: %w", err)
	}

	out, err := we.call(ctx, encryptKeyFunction, input)
	if err != nil {
		return keystore.EncryptedKey{}, err
	}

	var ek keystore.EncryptedKey
	if err := json.Unmarshal(out, &ek); err != nil {
		return keystore.EncryptedKey{}, fmt.Errorf("failed to parse %s output: %w", encryptKeyFunction, err)
	}
	if ek.EncrypterName == "" {
		ek.EncrypterName = we.name
	}
	if ek.EncrypterName != we.name {
		return keystore.EncryptedKey{}, fmt.Errorf("plugin %s tagged its output as %q", we.name, ek.EncrypterName)
	}
	ek.ID = key.ID
	return ek, nil
}

func (we *WASMEncrypter) DecryptKey(ctx context.Context, encryptedKey keystore.EncryptedKey, password string) (keystore.Key, error) {
	if encryptedKey.EncrypterName != we.name {
		return keystore.Key{}, encrypter.ErrDecryption
	}

	input, err := json.Marshal(decryptRequest{EncryptedKey: encryptedKey, Password: password})
	if err != nil {
		return keystore.Key{}, fmt.Errorf("failed to marshal decrypt request: %w", err)
	}

	out, err := we.call(ctx, decryptKeyFunction, input)
	if err != nil {
		return keystore.Key{}, encrypter.ErrDecryption
	}

	var key keystore.Key
	if err := json.Unmarshal(out, &key); err != nil {
		return keystore.Key{}, encrypter.ErrDecryption
	}
	key.ID = encryptedKey.ID
	return key, nil
}

// Close shuts down the plugin instance.
func (we *WASMEncrypter) Close(ctx context.Context) error {
	we.mu.Lock()
	defer we.mu.Unlock()
	if we.module == nil {
		return nil
	}
	err := we.module.Close(ctx)
	we.module = nil
	return err
}

func (we *WASMEncrypter) call(ctx context.Context, fn string, input []byte) ([]byte, error) {
	we.mu.Lock()
	defer we.mu.Unlock()
	if we.module == nil {
		return nil, fmt.Errorf("plugin %s is closed", we.name)
	}

	exitCode, out, err := we.module.CallWithContext(ctx, fn, input)
	if err != nil {
		return nil, fmt.Errorf("failed to call function %s: %w", fn, err)
	}
	if exitCode != 0 {
		return nil, fmt.Errorf("function %s returned non-zero exit code: %d", fn, exitCode)
	}
	return out, nil
}
