package mongodb

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/mongo"
)

func TestIsWriteConflict(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"write conflict code", mongo.CommandError{Code: 112, Name: "WriteConflict"}, true},
		{"transient label", mongo.CommandError{Code: 251, Labels: []string{"TransientTransactionError"}}, true},
		{"wrapped", fmt.Errorf("commit: %w", mongo.CommandError{Code: 112}), true},
		{"write exception", mongo.WriteException{WriteErrors: []mongo.WriteError{{Code: 112}}}, true},
		{"duplicate key", mongo.WriteException{WriteErrors: []mongo.WriteError{{Code: 11000}}}, false},
		{"other command error", mongo.CommandError{Code: 13, Name: "Unauthorized"}, false},
		{"plain error", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsWriteConflict(tt.err))
		})
	}
}

func TestDefaultConfigTargetsReplicaSet(t *testing.T) {
	cfg := DefaultConfig()
	assert.Contains(t, cfg.URI, "replicaSet=")
	assert.Equal(t, "coldroom", cfg.Database)
	assert.Positive(t, cfg.MaxCommitTime)
}
