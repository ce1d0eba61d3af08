package model

const (
	TableCampaign        = "campaign"
	TableDonation        = "donation"
	TableUser            = "user"
	TableToken           = "token"
	TableCrawlCheckpoint = "crawl_checkpoint"
	TablePublishAttempt  = "publish_attempt"
	TableSkippedEvent    = "skipped_event"
)
