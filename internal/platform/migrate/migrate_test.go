package migrate

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFilesAreOrdered(t *testing.T) {
	m := New(nil, nil)
	names, err := m.Files()
	require.NoError(t, err)
	require.Equal(t, []string{"0001_billing_schema.sql", "0002_audit_logs.sql"}, names)
}

func TestSchemaDeclaresInvariants(t *testing.T) {
	m := New(nil, nil)
	content, err := fs.ReadFile(m.fsys, "0001_billing_schema.sql")
	require.NoError(t, err)
	schema := string(content)
	for _, fragment := range []string{
		"CONSTRAINT invoices_invoice_number_key UNIQUE (invoice_number)",
		"CHECK (total_amount = amount + tax_amount)",
		"CHECK (total_price = quantity * unit_price)",
		"REFERENCES stores(id) ON DELETE CASCADE",
	} {
		require.True(t, strings.Contains(schema, fragment), "missing %q", fragment)
	}
}
