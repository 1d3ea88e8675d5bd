package machreg

// PendingCheck is a verification the create flow would run but cannot,
// because of a known dashboard defect.
type PendingCheck struct {
	Name   string
	Reason string
	Issue  string
}

// PendingChecks lists the disabled create-flow verifications.
var PendingChecks = []PendingCheck{
	{
		Name:   "download registration file",
		Reason: "the downloaded archive cannot be verified",
		Issue:  "https://github.com/rancher/dashboard/issues/6710",
	},
	{
		Name:   "cloud configuration content",
		Reason: "the cloud-config view cannot be inspected",
		Issue:  "https://github.com/rancher/dashboard/issues/6458",
	},
}

// PendingCheckNamed returns the pending check with name.
func PendingCheckNamed(name string) (PendingCheck, bool) {
	for _, pc := range PendingChecks {
		if pc.Name == name {
			return pc, true
		}
	}
	return PendingCheck{}, false
}
