package receipt_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ogulcanaydogan/basket-guardian/pkg/receipt"
)

func TestParseItems(t *testing.T) {
	reply := "```json\n" + `{"items":[
		{"name":"Milk","price":1.29},
		{"name":"  ","price":2},
		{"price":"$4.99"},
		{"name":"Cheese","price":"3,50 €"},
		{"name":"Bread","price":-1},
		{"name":"Eggs","price":"free"},
		{"name":42,"price":null},
		{"name":"Wine","price":"1,299.00"}
	]}` + "\n```"

	items, err := receipt.ParseItems(reply)
	require.NoError(t, err)
	require.Len(t, items, 8)

	assert.Equal(t, receipt.Item{Name: "Milk", Price: 1.29}, items[0])
	assert.Equal(t, receipt.Item{Name: receipt.UnknownItemName, Price: 2}, items[1])
	assert.Equal(t, receipt.Item{Name: receipt.UnknownItemName, Price: 4.99}, items[2])
	assert.Equal(t, receipt.Item{Name: "Cheese", Price: 3.5}, items[3])
	assert.Equal(t, 0.0, items[4].Price)
	assert.Equal(t, 0.0, items[5].Price)
	assert.Equal(t, receipt.UnknownItemName, items[6].Name)
	assert.Equal(t, 1299.0, items[7].Price)
}

func TestParseItems_Empty(t *testing.T) {
	items, err := receipt.ParseItems(`{"items":[]}`)
	require.NoError(t, err)
	assert.Empty(t, items)

	items, err = receipt.ParseItems(`{}`)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestParseItems_Malformed(t *testing.T) {
	_, err := receipt.ParseItems("Sorry, I cannot read this receipt.")
	assert.ErrorIs(t, err, receipt.ErrMalformedReply)
}

func TestParseItems_NormalizesNames(t *testing.T) {
	// A combining acute accent composes into a single rune.
	items, err := receipt.ParseItems("{\"items\":[{\"name\":\"Cafe\u0301  beans\",\"price\":5}]}")
	require.NoError(t, err)
	assert.Equal(t, "Caf\u00e9 beans", items[0].Name)
}

func TestTotal(t *testing.T) {
	items := []receipt.Item{{Price: 0.1}, {Price: 0.2}, {Price: 1.29}}
	assert.Equal(t, 1.59, receipt.Total(items))
	assert.Zero(t, receipt.Total(nil))
}
