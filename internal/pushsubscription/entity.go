package pushsubscription

import "time"

type Kind string

const (
	KindWebPush Kind = "webpush"
	KindExpo    Kind = "expo"
)

type Subscription struct {
	ID        string    `yaml:"id" json:"id"`
	MemberID  string    `yaml:"member_id" json:"memberId"`
	Kind      Kind      `yaml:"kind" json:"kind"`
	Endpoint  string    `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`
	P256dhKey string    `yaml:"p256dh_key,omitempty" json:"-"`
	AuthKey   string    `yaml:"auth_key,omitempty" json:"-"`
	ExpoToken string    `yaml:"expo_token,omitempty" json:"expoToken,omitempty"`
	CreatedAt time.Time `yaml:"created_at" json:"createdAt"`
}

// Destination is the value that identifies the device: the Web Push endpoint
// or the Expo push token.
func (s *Subscription) Destination() string {
	if s.Kind == KindExpo {
		return s.ExpoToken
	}
	return s.Endpoint
}
