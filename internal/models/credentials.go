package models

// Keys the credential pair is persisted under
const (
	KeyAccessToken  = "accessToken"
	KeyRefreshToken = "refreshToken"
	KeyUserID       = "userId"
)

// CredentialKeys lists every persisted key; cleared together on logout
var CredentialKeys = []string{KeyAccessToken, KeyRefreshToken, KeyUserID}

// Credentials is the access/refresh pair plus the subject it belongs to.
// Either both tokens are set (authenticated) or none (anonymous).
type Credentials struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	UserID       string `json:"userId,omitempty"`
}

func (c Credentials) Authenticated() bool {
	return c.AccessToken != "" && c.RefreshToken != ""
}

// Partial reports a store that holds exactly one of the two tokens
func (c Credentials) Partial() bool {
	return (c.AccessToken == "") != (c.RefreshToken == "")
}

// CredentialsFromValues reads the pair from store values.
// A partial pair is returned as is, callers decide how to treat it.
func CredentialsFromValues(values map[string]string) Credentials {
	return Credentials{
		AccessToken:  values[KeyAccessToken],
		RefreshToken: values[KeyRefreshToken],
		UserID:       values[KeyUserID],
	}
}

// Values converts credentials into store values. Empty user id is skipped,
// so a refresh never overwrites the stored subject.
func (c Credentials) Values() map[string]string {
	values := map[string]string{
		KeyAccessToken:  c.AccessToken,
		KeyRefreshToken: c.RefreshToken,
	}
	if c.UserID != "" {
		values[KeyUserID] = c.UserID
	}
	return values
}
