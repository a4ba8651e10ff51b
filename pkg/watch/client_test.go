package watch

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"testing"

	"github.com/GotokHQ/stamp/internal/types"
)

func testClient(t *testing.T) *Client {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Endpoint = "localhost:10000"
	cfg.Owner = "cardFRMHxFN4X1urijmqb7gWSMT7bAep4Pd4LuLciG3"
	cfg.UseTLS = false
	cfg.AccountChannelSize = 2
	cfg.SlotChannelSize = 2

	c, err := NewClient(cfg)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

func randomKeyBytes(t *testing.T) []byte {
	t.Helper()
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return pub
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); !errors.Is(err, ErrNoEndpoint) {
		t.Errorf("missing endpoint: err = %v, want ErrNoEndpoint", err)
	}

	cfg.Endpoint = "localhost:10000"
	if err := cfg.Validate(); !errors.Is(err, ErrNoOwner) {
		t.Errorf("missing owner: err = %v, want ErrNoOwner", err)
	}

	cfg.Owner = "cardFRMHxFN4X1urijmqb7gWSMT7bAep4Pd4LuLciG3"
	if err := cfg.Validate(); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}

	cfg.AccountChannelSize = -1
	if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("bad channel size: err = %v, want ErrInvalidConfig", err)
	}
}

func TestConfigWithDefaults(t *testing.T) {
	cfg := Config{
		Endpoint: "localhost:10000",
		Owner:    "cardFRMHxFN4X1urijmqb7gWSMT7bAep4Pd4LuLciG3",
	}.WithDefaults()

	if cfg.AccountChannelSize != DefaultAccountChannelSize {
		t.Errorf("account channel size = %d, want %d", cfg.AccountChannelSize, DefaultAccountChannelSize)
	}
	if cfg.PingInterval != DefaultPingInterval {
		t.Errorf("ping interval = %v, want %v", cfg.PingInterval, DefaultPingInterval)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaulted config invalid: %v", err)
	}
}

func TestConvertAccountUpdate(t *testing.T) {
	c := testClient(t)

	pubkey := randomKeyBytes(t)
	owner := randomKeyBytes(t)
	sig := make([]byte, types.SignatureSize)
	sig[0] = 7

	update := c.convertAccountUpdate(&accountUpdate{
		Slot: 42,
		Account: &accountInfo{
			Pubkey:       pubkey,
			Lamports:     1000,
			Owner:        owner,
			Data:         []byte{1},
			WriteVersion: 3,
			TxnSignature: sig,
		},
	})
	if update == nil {
		t.Fatal("valid update dropped")
	}
	if update.Slot != 42 || update.Lamports != 1000 || update.WriteVersion != 3 {
		t.Errorf("update = %+v", update)
	}
	if update.TxnSignature == nil || update.TxnSignature[0] != 7 {
		t.Errorf("txn signature = %v", update.TxnSignature)
	}

	// Malformed keys are dropped rather than surfaced as zero values.
	if got := c.convertAccountUpdate(&accountUpdate{Account: &accountInfo{Pubkey: []byte{1, 2}}}); got != nil {
		t.Errorf("malformed pubkey produced %+v", got)
	}
	if got := c.convertAccountUpdate(&accountUpdate{}); got != nil {
		t.Errorf("empty update produced %+v", got)
	}
}

func TestConvertSlotUpdate(t *testing.T) {
	c := testClient(t)

	parent := uint64(9)
	update := c.convertSlotUpdate(&slotUpdate{Slot: 10, Parent: &parent, Status: int32(SlotFinalized)})
	if update.Slot != 10 || update.Status != SlotFinalized {
		t.Errorf("update = %+v", update)
	}
	if update.ParentSlot == nil || *update.ParentSlot != 9 {
		t.Errorf("parent = %v, want 9", update.ParentSlot)
	}
}

func TestProcessUpdateDelivery(t *testing.T) {
	c := testClient(t)

	var seenSlots []uint64
	c.config.OnAccount = func(u *AccountUpdate) {
		seenSlots = append(seenSlots, u.Slot)
	}

	mkUpdate := func(slot uint64) *subscribeUpdate {
		return &subscribeUpdate{
			Account: &accountUpdate{
				Slot: slot,
				Account: &accountInfo{
					Pubkey: randomKeyBytes(t),
					Owner:  randomKeyBytes(t),
				},
			},
		}
	}

	// Channel size is 2: the third update must evict the first.
	for slot := uint64(1); slot <= 3; slot++ {
		c.processUpdate(mkUpdate(slot))
	}

	if len(seenSlots) != 3 {
		t.Fatalf("callback saw %d updates, want 3", len(seenSlots))
	}
	first := <-c.accounts
	second := <-c.accounts
	if first.Slot != 2 || second.Slot != 3 {
		t.Errorf("buffered slots = %d, %d; want 2, 3", first.Slot, second.Slot)
	}
	if got := c.Health().LastSlot; got != 3 {
		t.Errorf("last slot = %d, want 3", got)
	}
}

func TestProcessUpdateIgnoresKeepalive(t *testing.T) {
	c := testClient(t)

	c.processUpdate(&subscribeUpdate{Ping: &pingUpdate{}})
	c.processUpdate(&subscribeUpdate{Pong: &pongUpdate{ID: 1}})
	c.processUpdate(nil)

	select {
	case u := <-c.accounts:
		t.Errorf("unexpected account update %+v", u)
	default:
	}
}
