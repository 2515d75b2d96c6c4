package wallet

import (
	"sort"
	"testing"

	"github.com/meshcash/meshcash/pkg/crypto"
)

func newTestKeystore(t *testing.T) *Keystore {
	t.Helper()
	ks, err := NewKeystore(t.TempDir())
	if err != nil {
		t.Fatalf("NewKeystore: %v", err)
	}
	return ks
}

func newMainKey(t *testing.T) *crypto.MainSecretKey {
	t.Helper()
	key, err := crypto.GenerateMainSecretKey()
	if err != nil {
		t.Fatalf("GenerateMainSecretKey: %v", err)
	}
	return key
}

func TestKeystore_CreateLoad(t *testing.T) {
	ks := newTestKeystore(t)
	key := newMainKey(t)
	password := []byte("hunter2")

	if err := ks.Create("default", key, password, testParams); err != nil {
		t.Fatalf("Create: %v", err)
	}

	loaded, err := ks.Load("default", password)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.MainPubkey() != key.MainPubkey() {
		t.Error("loaded key does not match created key")
	}
}

func TestKeystore_LoadWrongPassword(t *testing.T) {
	ks := newTestKeystore(t)
	if err := ks.Create("default", newMainKey(t), []byte("right"), testParams); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := ks.Load("default", []byte("wrong")); err == nil {
		t.Error("Load succeeded with wrong password")
	}
}

func TestKeystore_LoadMissing(t *testing.T) {
	ks := newTestKeystore(t)
	if _, err := ks.Load("nope", []byte("x")); err == nil {
		t.Error("Load succeeded for missing wallet")
	}
}

func TestKeystore_CreateDuplicate(t *testing.T) {
	ks := newTestKeystore(t)
	if err := ks.Create("default", newMainKey(t), []byte("pw"), testParams); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := ks.Create("default", newMainKey(t), []byte("pw"), testParams); err == nil {
		t.Error("Create succeeded for existing wallet name")
	}
}

func TestKeystore_MainPubkey(t *testing.T) {
	ks := newTestKeystore(t)
	key := newMainKey(t)
	if err := ks.Create("default", key, []byte("pw"), testParams); err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Identity lookup must work without the password.
	pub, err := ks.MainPubkey("default")
	if err != nil {
		t.Fatalf("MainPubkey: %v", err)
	}
	if pub != key.MainPubkey() {
		t.Error("MainPubkey does not match created key")
	}
}

func TestKeystore_ListDelete(t *testing.T) {
	ks := newTestKeystore(t)

	names, err := ks.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(names) != 0 {
		t.Fatalf("List on empty keystore = %v", names)
	}

	for _, name := range []string{"alpha", "beta"} {
		if err := ks.Create(name, newMainKey(t), []byte("pw"), testParams); err != nil {
			t.Fatalf("Create %q: %v", name, err)
		}
	}

	names, err = ks.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	sort.Strings(names)
	if len(names) != 2 || names[0] != "alpha" || names[1] != "beta" {
		t.Errorf("List = %v, want [alpha beta]", names)
	}

	if err := ks.Delete("alpha"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	names, err = ks.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(names) != 1 || names[0] != "beta" {
		t.Errorf("List after delete = %v, want [beta]", names)
	}

	if err := ks.Delete("alpha"); err == nil {
		t.Error("Delete succeeded for missing wallet")
	}
}
