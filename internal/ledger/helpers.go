package ledger

import (
	"encoding/json"

	ledgerentry "github.com/Peersyst/xrpl-go/xrpl/ledger-entry-types"
	requests "github.com/Peersyst/xrpl-go/xrpl/queries/transactions"
	transactions "github.com/Peersyst/xrpl-go/xrpl/transaction"
)

// convertTxResponse extracts the pieces the rest of the connector cares about
// from a confirmed transaction response.
func convertTxResponse(resp *requests.TxResponse) *TxResult {
	if resp == nil {
		return nil
	}
	return &TxResult{
		Hash:        string(resp.Hash),
		LedgerIndex: uint32(resp.LedgerIndex),
		Validated:   resp.Validated,
		ChannelID:   createdPayChannelIndex(resp.Meta),
	}
}

// createdPayChannelIndex finds the ledger index of a PayChannel object created
// by this transaction, if any. Meta decodes off the wire as a bare
// map[string]interface{} rather than transactions.TxObjMeta, so it is
// round-tripped through JSON the same way the rest of this client's
// metadata-reading code does.
func createdPayChannelIndex(meta any) string {
	if meta == nil {
		return ""
	}

	var objMeta transactions.TxObjMeta
	switch m := meta.(type) {
	case transactions.TxObjMeta:
		objMeta = m
	case map[string]interface{}:
		raw, err := json.Marshal(m)
		if err != nil {
			return ""
		}
		if err := json.Unmarshal(raw, &objMeta); err != nil {
			return ""
		}
	default:
		return ""
	}

	for _, node := range objMeta.AffectedNodes {
		if node.CreatedNode != nil && node.CreatedNode.LedgerEntryType == ledgerentry.PayChannelEntry {
			return node.CreatedNode.LedgerIndex
		}
	}
	return ""
}
