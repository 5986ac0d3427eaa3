package cmxapi

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleDocument = `{
	"id": "0f1e2d",
	"externalId": "EXT-42",
	"creationDate": "2024-05-17T09:30:00Z",
	"name": "contract.pdf",
	"applicationSource": "GED",
	"sensitivity": "C2",
	"maxRetentionDate": "2034-05-17T00:00:00+02:00",
	"fileName": "contract_v2.pdf",
	"size": 52311,
	"tags": ["legal", "signed"],
	"owner": null
}`

func TestDocumentRecord_Unmarshal(t *testing.T) {
	var doc DocumentRecord
	require.NoError(t, json.Unmarshal([]byte(sampleDocument), &doc))

	assert.Equal(t, "0f1e2d", doc.ID)
	assert.Equal(t, "EXT-42", doc.ExternalID)
	assert.Equal(t, "contract.pdf", doc.Name)
	assert.Equal(t, "GED", doc.ApplicationSource)
	assert.Equal(t, "C2", doc.Sensitivity)
	assert.True(t, doc.CreationDate.Equal(time.Date(2024, 5, 17, 9, 30, 0, 0, time.UTC)))
	assert.True(t, doc.MaxRetentionDate.Equal(time.Date(2034, 5, 16, 22, 0, 0, 0, time.UTC)))
	assert.Len(t, doc.Extra, 4)
	assert.Contains(t, doc.Extra, "owner")
}

func TestDocumentRecord_Column(t *testing.T) {
	var doc DocumentRecord
	require.NoError(t, json.Unmarshal([]byte(sampleDocument), &doc))

	tests := map[string]string{
		"id":                "0f1e2d",
		"externalId":        "EXT-42",
		"creationDate":      "2024-05-17T09:30:00Z",
		"maxRetentionDate":  "2034-05-17T00:00:00+02:00",
		"applicationSource": "GED",
		"fileName":          "contract_v2.pdf",
		"size":              "52311",
		"tags":              `["legal","signed"]`,
		"owner":             "",
		"unknown":           "",
	}
	for column, want := range tests {
		assert.Equal(t, want, doc.Column(column), "column %s", column)
	}
}

func TestDocumentRecord_MarshalKeepsExtraFields(t *testing.T) {
	var doc DocumentRecord
	require.NoError(t, json.Unmarshal([]byte(sampleDocument), &doc))

	out, err := json.Marshal(doc)
	require.NoError(t, err)

	var again DocumentRecord
	require.NoError(t, json.Unmarshal(out, &again))
	assert.Equal(t, doc.ID, again.ID)
	assert.True(t, doc.CreationDate.Equal(again.CreationDate))
	assert.Equal(t, "52311", again.Column("size"))
	assert.Equal(t, "contract_v2.pdf", again.Column("fileName"))
}

func TestDocumentRecord_InvalidDate(t *testing.T) {
	var doc DocumentRecord
	err := json.Unmarshal([]byte(`{"id":"x","creationDate":"yesterday"}`), &doc)
	assert.Error(t, err)
}

func TestDocumentRecord_EmptyDateIgnored(t *testing.T) {
	var doc DocumentRecord
	require.NoError(t, json.Unmarshal([]byte(`{"id":"x","creationDate":"","maxRetentionDate":null}`), &doc))
	assert.True(t, doc.CreationDate.IsZero())
	assert.Equal(t, "", doc.Column("creationDate"))
}
