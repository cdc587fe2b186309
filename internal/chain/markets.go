package chain

import (
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

// MarketDefinitions models the structure of configs/markets.yaml: the fixed
// external venues the strategies are allowed to touch.
type MarketDefinitions struct {
	Router           string   `yaml:"router"`
	PredictionMarket string   `yaml:"prediction_market"`
	StakingVenues    []string `yaml:"staking_venues"`
}

// LoadMarketDefinitions parses the YAML file containing venue metadata.
func LoadMarketDefinitions(path string) (MarketDefinitions, error) {
	if strings.TrimSpace(path) == "" {
		return MarketDefinitions{}, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return MarketDefinitions{}, fmt.Errorf("读取市场配置失败: %w", err)
	}

	var defs MarketDefinitions
	if err := yaml.Unmarshal(content, &defs); err != nil {
		return MarketDefinitions{}, fmt.Errorf("解析市场配置失败: %w", err)
	}
	if err := defs.validate(); err != nil {
		return MarketDefinitions{}, err
	}
	return defs, nil
}

func (d MarketDefinitions) validate() error {
	for _, addr := range append([]string{d.Router, d.PredictionMarket}, d.StakingVenues...) {
		if addr != "" && !common.IsHexAddress(addr) {
			return fmt.Errorf("市场配置包含非法地址: %s", addr)
		}
	}
	return nil
}

// RouterAddress returns the AMM router address, zero when unset.
func (d MarketDefinitions) RouterAddress() common.Address {
	return common.HexToAddress(d.Router)
}

// PredictionAddress returns the prediction market address, zero when unset.
func (d MarketDefinitions) PredictionAddress() common.Address {
	return common.HexToAddress(d.PredictionMarket)
}

// VenueAddresses returns the whitelisted staking venues in declaration order.
// The order matters: the yield strategy always deploys into the first entry.
func (d MarketDefinitions) VenueAddresses() []common.Address {
	venues := make([]common.Address, 0, len(d.StakingVenues))
	for _, raw := range d.StakingVenues {
		if raw == "" {
			continue
		}
		venues = append(venues, common.HexToAddress(raw))
	}
	return venues
}
