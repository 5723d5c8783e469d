package paychan

import (
	"context"

	"github.com/warrant1/chain-xrpl-ilp/internal/account"
)

// startAutoClaim arms the periodic profitability evaluation
// for acct, stopping automatically when acct blocks.
func (o *Orchestrator) startAutoClaim(acct *account.Account) {
	ctx, cancel := context.WithCancel(context.Background())
	acct.SetAutoClaimCancel(cancel)
	go o.runAutoClaim(ctx, acct)
}

func (o *Orchestrator) runAutoClaim(ctx context.Context, acct *account.Account) {
	ticker := newTicker(o.settings.ClaimInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.evaluateAutoClaim(ctx, acct)
		}
	}
}

// evaluateAutoClaim submits the best-known incoming claim iff it is
// profitable: income = incomingClaim.amount - lastClaimedAmount must be
// positive and the network fee (in drops, like both claim amounts) must not exceed
// maxFeePercent of that income.
func (o *Orchestrator) evaluateAutoClaim(ctx context.Context, acct *account.Account) {
	incoming, _ := acct.ChannelIDs()
	if incoming == "" {
		return
	}

	claim := acct.GetIncomingClaim()
	lastClaimed := acct.GetLastClaimed()
	if claim.Amount <= lastClaimed {
		return
	}
	income := claim.Amount - lastClaimed

	feeDrops, err := o.ledger.GetFeeDrops(ctx)
	if err != nil {
		o.logger.Warn("auto-claim: fee lookup failed", "accountId", acct.AccountID, "error", err)
		return
	}
	if float64(feeDrops)/float64(income) > o.settings.MaxFeePercent {
		return
	}

	pc, err := o.ledger.GetPaymentChannel(ctx, incoming)
	if err != nil {
		o.logger.Warn("auto-claim: re-query failed", "accountId", acct.AccountID, "error", err)
		return
	}
	if pc.Balance >= claim.Amount {
		acct.SetLastClaimed(pc.Balance)
		return
	}

	result, err := o.submit.SubmitPaymentChannelClaim(ctx, incoming, claim.Amount, claim.Signature, pc.PublicKey, false)
	if err != nil {
		o.logger.Warn("auto-claim: submission failed", "accountId", acct.AccountID, "error", err)
		return
	}
	if result.Validated {
		acct.SetLastClaimed(claim.Amount)
	}
}
