package paychan

import (
	"time"

	"github.com/warrant1/chain-xrpl-ilp/internal/config"
)

// Settings is the orchestrator's resolved policy, derived once from config.Config.
type Settings struct {
	ServerAddress               string
	Secret                      string
	AssetScale                  uint8
	Bandwidth                   uint64
	MaxPacketAmount             uint64
	MaxFeePercent               float64
	ClaimInterval               time.Duration
	MinSettleDelay              uint32
	MinIncomingChannelDrops     uint64
	OutgoingChannelDefaultDrops uint64
	WatchInterval               time.Duration
}

// NewSettings resolves cfg into a Settings, applying the connector's default
// policy (maxFeePercent 0.01, maxPacketAmount unbounded). serverAddress
// is the connector's own ledger address, resolved by ledger.NewXRPLClient
// regardless of whether LedgerConfig configured a raw secret or a BIP-44 seed.
func NewSettings(ledgerCfg config.LedgerConfig, paychanCfg config.PaychanConfig, serverAddress string) (Settings, error) {
	scale, err := paychanCfg.EffectiveScale()
	if err != nil {
		return Settings{}, err
	}
	secret, err := ledgerCfg.EffectiveSecret()
	if err != nil {
		return Settings{}, err
	}
	maxFeePercent := paychanCfg.MaxFeePercent
	if maxFeePercent == 0 {
		maxFeePercent = 0.01
	}
	claimInterval := paychanCfg.ClaimInterval
	if claimInterval == 0 {
		claimInterval = 10 * time.Minute
	}
	minSettleDelay := paychanCfg.MinSettleDelay
	if minSettleDelay == 0 {
		minSettleDelay = time.Hour
	}
	outgoingDefault := paychanCfg.OutgoingChannelDefaultDrops
	if outgoingDefault == 0 {
		outgoingDefault = 10_000_000
	}

	return Settings{
		ServerAddress:               serverAddress,
		Secret:                      secret,
		AssetScale:                  scale,
		Bandwidth:                   paychanCfg.EffectiveBandwidth(),
		MaxPacketAmount:             paychanCfg.MaxPacketAmount,
		MaxFeePercent:               maxFeePercent,
		ClaimInterval:               claimInterval,
		MinSettleDelay:              uint32(minSettleDelay.Seconds()),
		MinIncomingChannelDrops:     paychanCfg.MinIncomingChannelDrops,
		OutgoingChannelDefaultDrops: outgoingDefault,
		WatchInterval:               paychanCfg.WatchInterval,
	}, nil
}
