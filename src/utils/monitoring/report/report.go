package report

type Report struct {
	Run        *RunReport        `json:"run,omitempty"`
	Reconciler *ReconcilerReport `json:"reconciler,omitempty"`
	Publisher  *PublisherReport  `json:"publisher,omitempty"`
	Notifier   *NotifierReport   `json:"notifier,omitempty"`
}
