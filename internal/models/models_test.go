package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionRecord_Validate(t *testing.T) {
	start := time.Now()
	valid := func() SessionRecord {
		return SessionRecord{
			Source:    "song.wav",
			Reason:    "client_gone",
			StartedAt: start,
			EndedAt:   start.Add(time.Minute),
		}
	}

	tests := []struct {
		name    string
		mutate  func(*SessionRecord)
		wantErr error
		field   string
	}{
		{"valid", func(*SessionRecord) {}, nil, ""},
		{"missing source", func(r *SessionRecord) { r.Source = "" }, ErrSourceRequired, ""},
		{"missing reason", func(r *SessionRecord) { r.Reason = "" }, nil, "reason"},
		{"ends before start", func(r *SessionRecord) { r.EndedAt = start.Add(-time.Second) }, nil, "ended_at"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := valid()
			tt.mutate(&r)
			err := r.Validate()

			switch {
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
			case tt.field != "":
				var verr ErrValidation
				require.ErrorAs(t, err, &verr)
				assert.Equal(t, tt.field, verr.Field)
			default:
				assert.NoError(t, err)
			}
		})
	}
}

func TestSessionRecord_BeforeCreate(t *testing.T) {
	r := &SessionRecord{Source: "song.wav", Reason: "closed", StartedAt: time.Now(), EndedAt: time.Now()}
	require.NoError(t, r.BeforeCreate(nil))
	assert.False(t, r.ID.IsZero())

	bad := &SessionRecord{Reason: "closed"}
	assert.ErrorIs(t, bad.BeforeCreate(nil), ErrSourceRequired)
	assert.True(t, bad.ID.IsZero())
}

func TestSessionRecord_Duration(t *testing.T) {
	start := time.Now()
	r := SessionRecord{StartedAt: start, EndedAt: start.Add(90 * time.Second)}
	assert.Equal(t, 90*time.Second, r.Duration())
}

func TestSourceSelection_Validate(t *testing.T) {
	assert.NoError(t, (&SourceSelection{Kind: SourceKindLocal, Identifier: "a.wav"}).Validate())
	assert.NoError(t, (&SourceSelection{Kind: SourceKindRemote, Identifier: "http://radio.example"}).Validate())
	assert.ErrorIs(t, (&SourceSelection{Kind: SourceKindLocal}).Validate(), ErrSourceRequired)

	var verr ErrValidation
	assert.ErrorAs(t, (&SourceSelection{Kind: "ftp", Identifier: "x"}).Validate(), &verr)

	s := &SourceSelection{Kind: SourceKindRemote, Identifier: "http://radio.example"}
	assert.True(t, s.IsRemote())
	require.NoError(t, s.BeforeCreate(nil))
	assert.False(t, s.ID.IsZero())
}
