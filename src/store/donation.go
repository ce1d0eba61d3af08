package store

import (
	"context"

	"github.com/donation-platform/ledger-worker/src/utils/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Largest values the campaign summary columns hold
const (
	maxCurrentAmount       = "999999999999999999.99"
	maxPercentageCompleted = "99999999.99"
)

// Summary columns are capped, donation rows always keep the exact amounts.
// Returns the campaigns whose totals didn't fit.
const refreshCampaignAmounts = `
UPDATE campaign AS c SET
	current_amount = LEAST(s.total, ` + maxCurrentAmount + `),
	percentage_completed = CASE
		WHEN c.goal > 0 THEN LEAST(ROUND(s.total / c.goal * 100, 2), ` + maxPercentageCompleted + `)
		ELSE 0
	END,
	updated_at = NOW()
FROM (
	SELECT campaign_id, COALESCE(SUM(amount), 0) AS total
	FROM donation
	WHERE campaign_id IN ?
	GROUP BY campaign_id
) AS s
WHERE c.id = s.campaign_id
RETURNING c.id AS campaign_id, s.total::text AS total,
	s.total > ` + maxCurrentAmount + ` AS amount_capped,
	c.goal > 0 AND ROUND(s.total / c.goal * 100, 2) > ` + maxPercentageCompleted + ` AS percentage_capped`

type amountRefresh struct {
	CampaignId       int64
	Total            string
	AmountCapped     bool
	PercentageCapped bool
}

// Inserts or merges donations in one transaction, all or nothing.
// Later entries with the same key replace earlier ones.
func (self *Store) UpsertDonations(ctx context.Context, batch []model.DonationUpsert) (err error) {
	if len(batch) == 0 {
		return nil
	}

	// Postgres rejects an upsert touching the same row twice
	rows, campaignIds := dedupDonations(batch)

	ctx, cancel := self.writeContext(ctx)
	defer cancel()

	var refreshed []amountRefresh
	err = self.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "campaign_id"},
				{Name: "user_id"},
				{Name: "transaction_hash"},
			},
			DoUpdates: clause.AssignmentColumns([]string{"amount", "date"}),
		}).
			Create(&rows).
			Error
		if err != nil {
			return err
		}

		return tx.Raw(refreshCampaignAmounts, campaignIds).Scan(&refreshed).Error
	})
	if err != nil {
		return classify(err)
	}

	for _, r := range refreshed {
		if !r.AmountCapped && !r.PercentageCapped {
			continue
		}
		self.log.WithField("campaign_id", r.CampaignId).
			WithField("total", r.Total).
			WithField("amount_capped", r.AmountCapped).
			WithField("percentage_capped", r.PercentageCapped).
			Warn("Campaign total doesn't fit the summary columns, stored capped value")
	}

	self.log.WithField("num", len(rows)).Debug("Upserted donations")
	return
}

func dedupDonations(batch []model.DonationUpsert) (rows []model.Donation, campaignIds []int64) {
	index := make(map[model.DonationKey]int, len(batch))
	seenCampaigns := make(map[int64]struct{})

	for _, donation := range batch {
		row := model.Donation{
			CampaignId:      donation.CampaignId,
			UserId:          donation.UserId,
			TransactionHash: donation.TransactionHash,
			Amount:          donation.Amount,
			Date:            donation.Date,
		}

		if i, ok := index[donation.Key()]; ok {
			rows[i] = row
			continue
		}
		index[donation.Key()] = len(rows)
		rows = append(rows, row)

		if _, ok := seenCampaigns[donation.CampaignId]; !ok {
			seenCampaigns[donation.CampaignId] = struct{}{}
			campaignIds = append(campaignIds, donation.CampaignId)
		}
	}
	return
}
