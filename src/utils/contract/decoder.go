package contract

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/donation-platform/ledger-worker/src/utils/mirror"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
)

var (
	// topic0 doesn't match any event of the contract
	ErrUnknownSignature = errors.New("unknown event signature")

	// Topics or data don't match the event's ABI
	ErrMalformedLog = errors.New("malformed log")
)

// Turns raw logs into typed events
type Decoder struct {
	abi abi.ABI
}

func NewDecoder() (self *Decoder, err error) {
	self = new(Decoder)
	self.abi, err = ABI()
	if err != nil {
		return nil, err
	}
	return
}

func (self *Decoder) ABI() *abi.ABI {
	return &self.abi
}

// Decodes a log returned by the mirror node
func (self *Decoder) Decode(entry mirror.LogEntry) (Event, error) {
	topics := make([]common.Hash, 0, len(entry.Topics))
	for _, raw := range entry.Topics {
		b, err := hexutil.Decode(raw)
		if err != nil || len(b) > common.HashLength {
			return nil, fmt.Errorf("%w: bad topic %q", ErrMalformedLog, raw)
		}
		// Mirror node may strip leading zeros
		topics = append(topics, common.BytesToHash(b))
	}

	data := []byte{}
	if entry.Data != "" && entry.Data != "0x" {
		var err error
		data, err = hexutil.Decode(entry.Data)
		if err != nil {
			return nil, fmt.Errorf("%w: bad data: %s", ErrMalformedLog, err.Error())
		}
	}

	return self.decode(topics, data, EventMeta{
		TransactionHash: entry.TransactionHash,
		Timestamp:       entry.Timestamp,
		Index:           entry.Index,
	})
}

// Decodes a log from a transaction receipt. Receipts carry no consensus timestamp.
func (self *Decoder) DecodeReceiptLog(log *types.Log) (Event, error) {
	if log == nil {
		return nil, fmt.Errorf("%w: nil log", ErrMalformedLog)
	}
	return self.decode(log.Topics, log.Data, EventMeta{
		TransactionHash: log.TxHash.Hex(),
		Index:           int(log.Index),
	})
}

func (self *Decoder) decode(topics []common.Hash, data []byte, meta EventMeta) (out Event, err error) {
	if len(topics) == 0 {
		err = fmt.Errorf("%w: no topics", ErrMalformedLog)
		return
	}

	event, err := self.abi.EventByID(topics[0])
	if err != nil {
		err = fmt.Errorf("%w: %s", ErrUnknownSignature, topics[0].Hex())
		return
	}

	var indexed abi.Arguments
	for _, input := range event.Inputs {
		if input.Indexed {
			indexed = append(indexed, input)
		}
	}
	if len(topics)-1 != len(indexed) {
		err = fmt.Errorf("%w: %s expects %d indexed topics, got %d", ErrMalformedLog, event.Name, len(indexed), len(topics)-1)
		return
	}

	values := make(map[string]interface{})
	err = abi.ParseTopicsIntoMap(values, indexed, topics[1:])
	if err != nil {
		err = fmt.Errorf("%w: %s topics: %s", ErrMalformedLog, event.Name, err.Error())
		return
	}

	err = event.Inputs.UnpackIntoMap(values, data)
	if err != nil {
		err = fmt.Errorf("%w: %s data: %s", ErrMalformedLog, event.Name, err.Error())
		return
	}

	meta.Name = event.Name
	meta.Args = make(map[string]string, len(values))
	for name, value := range values {
		meta.Args[name] = formatValue(value)
	}

	switch event.Name {
	case EventDonationReceived:
		out, err = newDonationReceived(meta, values)
	case EventCampaignPublished:
		out, err = newCampaignPublished(meta, values)
	case EventCampaignClosed:
		out, err = newCampaignClosed(meta, values)
	default:
		out = &GenericEvent{EventMeta: meta}
	}
	return
}

func newDonationReceived(meta EventMeta, values map[string]interface{}) (out *DonationReceived, err error) {
	out = &DonationReceived{EventMeta: meta}

	donor, ok := values["donor"].(common.Address)
	if !ok {
		return nil, fmt.Errorf("%w: donor is not an address", ErrMalformedLog)
	}
	out.Donor = strings.ToLower(donor.Hex())

	out.CampaignId, err = toId(values, "campaignId")
	if err != nil {
		return nil, err
	}

	amount, ok := values["amount"].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%w: amount is not an integer", ErrMalformedLog)
	}
	out.Amount = amount.String()
	return
}

func newCampaignPublished(meta EventMeta, values map[string]interface{}) (out *CampaignPublished, err error) {
	out = &CampaignPublished{EventMeta: meta}
	out.OffChainId, err = toId(values, "offChainId")
	if err != nil {
		return nil, err
	}
	out.CampaignId, err = toId(values, "campaignId")
	if err != nil {
		return nil, err
	}
	return
}

func newCampaignClosed(meta EventMeta, values map[string]interface{}) (out *CampaignClosed, err error) {
	out = &CampaignClosed{EventMeta: meta}
	out.CampaignId, err = toId(values, "campaignId")
	if err != nil {
		return nil, err
	}
	return
}

// Ids are uint256 on chain and bigint in the database
func toId(values map[string]interface{}, name string) (int64, error) {
	v, ok := values[name].(*big.Int)
	if !ok {
		return 0, fmt.Errorf("%w: %s is not an integer", ErrMalformedLog, name)
	}
	if !v.IsInt64() || v.Sign() < 0 {
		return 0, fmt.Errorf("%w: %s out of range: %s", ErrMalformedLog, name, v.String())
	}
	return v.Int64(), nil
}

func formatValue(v interface{}) string {
	switch v := v.(type) {
	case *big.Int:
		return v.String()
	case common.Address:
		return strings.ToLower(v.Hex())
	case common.Hash:
		return v.Hex()
	case []byte:
		return hexutil.Encode(v)
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}
