package domain // provisioning/domain

// Bucket classifies where an ImportRecord lands at the end of a run.
type Bucket string

const (
	BucketActive        Bucket = "active"         // device newly created this run
	BucketAlreadyActive Bucket = "already_active" // device pre-existed
	BucketInactive      Bucket = "inactive"       // skipped or not requested
)

// BlockDecision is the result of screening one subscriber.
// Reason is empty iff the subscriber is not blocked.
type BlockDecision struct {
	Blocked bool
	Reason  string
}

// ImportRecord is one row of the softphone import files. Username and
// Authname carry the same <extension><suffix> value; an empty Password means
// no credential is available for this subscriber (skipped / no device yet).
type ImportRecord struct {
	Extension string
	Name      string
	Email     string
	Username  string
	Authname  string
	Password  string
}

// ImportHeaders is the fixed column order of the import files.
var ImportHeaders = []string{"extension", "name", "email", "username", "authname", "password"}

// Row projects the record into ImportHeaders order.
func (r *ImportRecord) Row() []string {
	return []string{r.Extension, r.Name, r.Email, r.Username, r.Authname, r.Password}
}
