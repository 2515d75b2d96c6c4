package wallet

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/meshcash/meshcash/pkg/crypto"
)

// keystoreFile is the on-disk JSON format for an encrypted wallet identity.
type keystoreFile struct {
	Version          int       `json:"version"`
	CreatedAt        time.Time `json:"created_at"`
	MainPubkey       string    `json:"main_pubkey"` // hex, for lookup without decrypting
	EncryptedMainKey []byte    `json:"encrypted_main_key"`
}

// Keystore manages encrypted main key storage on disk. Each wallet is a
// single file holding the long-term secret key under password encryption.
type Keystore struct {
	path string
}

// NewKeystore creates a keystore that reads/writes to the given directory.
// The directory is created if it doesn't exist.
func NewKeystore(path string) (*Keystore, error) {
	if err := os.MkdirAll(path, 0700); err != nil {
		return nil, fmt.Errorf("create keystore dir: %w", err)
	}
	return &Keystore{path: path}, nil
}

func (ks *Keystore) walletPath(name string) string {
	return filepath.Join(ks.path, name+".wallet")
}

// Create writes a new encrypted wallet file holding the given main key.
func (ks *Keystore) Create(name string, key *crypto.MainSecretKey, password []byte, params EncryptionParams) error {
	path := ks.walletPath(name)
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("wallet %q already exists", name)
	}

	encrypted, err := Encrypt(key.Serialize(), password, params)
	if err != nil {
		return fmt.Errorf("encrypt main key: %w", err)
	}

	kf := keystoreFile{
		Version:          1,
		CreatedAt:        time.Now().UTC(),
		MainPubkey:       key.MainPubkey().String(),
		EncryptedMainKey: encrypted,
	}

	return ks.writeFile(path, &kf)
}

// Load decrypts a wallet file and returns the main key.
func (ks *Keystore) Load(name string, password []byte) (*crypto.MainSecretKey, error) {
	kf, err := ks.readFile(ks.walletPath(name))
	if err != nil {
		return nil, err
	}

	raw, err := Decrypt(kf.EncryptedMainKey, password)
	if err != nil {
		return nil, fmt.Errorf("decrypt wallet: %w", err)
	}
	defer func() {
		for i := range raw {
			raw[i] = 0
		}
	}()

	return crypto.MainSecretKeyFromBytes(raw)
}

// MainPubkey returns the public identity of a wallet without decrypting it.
func (ks *Keystore) MainPubkey(name string) (crypto.MainPubkey, error) {
	kf, err := ks.readFile(ks.walletPath(name))
	if err != nil {
		return crypto.MainPubkey{}, err
	}
	return crypto.ParseMainPubkey(kf.MainPubkey)
}

// List returns the names of all wallet files in the keystore.
func (ks *Keystore) List() ([]string, error) {
	entries, err := os.ReadDir(ks.path)
	if err != nil {
		return nil, fmt.Errorf("read keystore dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if ext := filepath.Ext(name); ext == ".wallet" {
			names = append(names, name[:len(name)-len(ext)])
		}
	}
	return names, nil
}

// Delete removes a wallet file.
func (ks *Keystore) Delete(name string) error {
	path := ks.walletPath(name)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return fmt.Errorf("wallet %q not found", name)
	}
	return os.Remove(path)
}

func (ks *Keystore) writeFile(path string, kf *keystoreFile) error {
	data, err := json.MarshalIndent(kf, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal wallet: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write wallet: %w", err)
	}
	return nil
}

func (ks *Keystore) readFile(path string) (*keystoreFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read wallet: %w", err)
	}
	var kf keystoreFile
	if err := json.Unmarshal(data, &kf); err != nil {
		return nil, fmt.Errorf("parse wallet: %w", err)
	}
	if kf.Version != 1 {
		return nil, fmt.Errorf("unsupported wallet version: %d", kf.Version)
	}
	return &kf, nil
}
