// Integration against DeploySrcEscrow/Withdraw/Cancel requires a local
// Anvil node with the factory and escrow contracts deployed; these tests
// cover the parts that don't need a live chain.
package chaina

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/nexusbridge/swaporch/pkg/errkind"
)

func TestParseFactoryABI(t *testing.T) {
	parsed, err := parseFactoryABI()
	if err != nil {
		t.Fatalf("parseFactoryABI() error = %v", err)
	}
	if _, ok := parsed.Methods["createSrcEscrow"]; !ok {
		t.Error("factory ABI missing createSrcEscrow method")
	}
	if _, ok := parsed.Events["SrcEscrowCreated"]; !ok {
		t.Error("factory ABI missing SrcEscrowCreated event")
	}
}

func TestParseEscrowABI(t *testing.T) {
	parsed, err := parseEscrowABI()
	if err != nil {
		t.Fatalf("parseEscrowABI() error = %v", err)
	}
	for _, method := range []string{"withdraw", "cancel"} {
		if _, ok := parsed.Methods[method]; !ok {
			t.Errorf("escrow ABI missing %s method", method)
		}
	}
	for _, event := range []string{"Withdrawn", "Cancelled"} {
		if _, ok := parsed.Events[event]; !ok {
			t.Errorf("escrow ABI missing %s event", event)
		}
	}
}

func TestToWireImmutablesPreservesFields(t *testing.T) {
	imm := Immutables{
		Maker:         common.HexToAddress("0x1"),
		Taker:         PlaceholderTakerAddress,
		Token:         common.HexToAddress("0x2"),
		Amount:        big.NewInt(1000),
		SafetyDeposit: big.NewInt(10),
		HashlockHash:  [32]byte{1},
		Timelocks: Timelocks{
			SrcWithdrawal:       big.NewInt(100),
			SrcPublicWithdrawal: big.NewInt(200),
			SrcCancellation:     big.NewInt(300),
			SrcDeployedAt:       big.NewInt(10),
			DstWithdrawal:       big.NewInt(40),
			DstCancellation:     big.NewInt(90),
			DstDeployedAt:       big.NewInt(5),
		},
		OrderHash: [32]byte{2},
		ChainID:   big.NewInt(11155111),
	}

	wire := toWireImmutables(imm)
	if wire.Maker != imm.Maker || wire.Taker != imm.Taker {
		t.Error("wire conversion lost maker/taker")
	}
	if wire.Amount.Cmp(imm.Amount) != 0 {
		t.Error("wire conversion lost amount")
	}
	if wire.Timelocks.SrcCancellation.Cmp(imm.Timelocks.SrcCancellation) != 0 {
		t.Error("wire conversion lost timelocks")
	}
}

func TestTransactorRequiresSignerKey(t *testing.T) {
	c := &Client{}
	_, err := c.transactor(nil)
	if err == nil {
		t.Fatal("expected error when no signer key configured")
	}
	if errkind.Of(err) != errkind.KindWriteUnavailable {
		t.Errorf("Of(err) = %s, want %s", errkind.Of(err), errkind.KindWriteUnavailable)
	}
}
