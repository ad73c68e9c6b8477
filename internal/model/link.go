package model

type Link struct {
	LocalPath     string    `json:"local_path"`
	RemoteURL     string    `json:"remote_url"`
	Branch        string    `json:"branch"`
	CredentialRef string    `json:"credential_ref,omitempty"`
	Baseline      *Baseline `json:"baseline,omitempty"`
}

func (l *Link) HasBaseline() bool {
	return l.Baseline != nil
}
