package chaina

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// factoryABIJSON and escrowABIJSON are hand-shaped to the wire-exact
// Immutables layout and the createSrcEscrow/withdraw/cancel surface.
// No contract source ships with the orchestrator; these describe the
// pre-deployed factory and escrow this client talks to.
const factoryABIJSON = `[
  {"type":"function","name":"createSrcEscrow","stateMutability":"payable",
   "inputs":[{"name":"immutables","type":"tuple","components":[
     {"name":"maker","type":"address"},
     {"name":"taker","type":"address"},
     {"name":"token","type":"address"},
     {"name":"amount","type":"uint256"},
     {"name":"safetyDeposit","type":"uint256"},
     {"name":"hashlockHash","type":"bytes32"},
     {"name":"timelocks","type":"tuple","components":[
       {"name":"srcWithdrawal","type":"uint256"},
       {"name":"srcPublicWithdrawal","type":"uint256"},
       {"name":"srcCancellation","type":"uint256"},
       {"name":"srcDeployedAt","type":"uint256"},
       {"name":"dstWithdrawal","type":"uint256"},
       {"name":"dstCancellation","type":"uint256"},
       {"name":"dstDeployedAt","type":"uint256"}
     ]},
     {"name":"orderHash","type":"bytes32"},
     {"name":"chainId","type":"uint256"}
   ]}],
   "outputs":[{"name":"escrow","type":"address"}]},
  {"type":"event","name":"SrcEscrowCreated","anonymous":false,"inputs":[
    {"name":"escrow","type":"address","indexed":false},
    {"name":"orderHash","type":"bytes32","indexed":true},
    {"name":"maker","type":"address","indexed":true}
  ]}
]`

const escrowABIJSON = `[
  {"type":"function","name":"withdraw","stateMutability":"nonpayable",
   "inputs":[{"name":"secret","type":"bytes32"}],"outputs":[]},
  {"type":"function","name":"cancel","stateMutability":"nonpayable",
   "inputs":[],"outputs":[]},
  {"type":"event","name":"Withdrawn","anonymous":false,
   "inputs":[{"name":"secret","type":"bytes32","indexed":false}]},
  {"type":"event","name":"Cancelled","anonymous":false,"inputs":[]}
]`

// erc20ABIJSON covers only the allowance/approve surface DeploySrcEscrow
// needs to fund the factory before it pulls an ERC-20 token in.
const erc20ABIJSON = `[
  {"type":"function","name":"allowance","stateMutability":"view",
   "inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],
   "outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"approve","stateMutability":"nonpayable",
   "inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],
   "outputs":[{"name":"","type":"bool"}]}
]`

func parseFactoryABI() (abi.ABI, error) {
	return abi.JSON(strings.NewReader(factoryABIJSON))
}

func parseEscrowABI() (abi.ABI, error) {
	return abi.JSON(strings.NewReader(escrowABIJSON))
}

func parseERC20ABI() (abi.ABI, error) {
	return abi.JSON(strings.NewReader(erc20ABIJSON))
}
