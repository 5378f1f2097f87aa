package flow

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const namespacedFlow = `<?xml version="1.0" encoding="UTF-8"?>
<Flow xmlns="http://soap.sforce.com/2006/04/metadata">
    <apiVersion>59.0</apiVersion>
    <formulas>
        <name>DiscountedTotal</name>
        <dataType>Currency</dataType>
        <expression>{!$Record.Amount} * 0.9</expression>
    </formulas>
    <recordUpdates>
        <name>Update_Account</name>
        <inputAssignments>
            <field>Rating</field>
            <value>
                <stringValue>Hot</stringValue>
            </value>
        </inputAssignments>
        <filters>
            <field>Industry</field>
            <operator>EqualTo</operator>
            <value>
                <elementReference>Account.Industry</elementReference>
            </value>
        </filters>
    </recordUpdates>
    <decisions>
        <rules>
            <conditions>
                <leftValueReference>$Record.Region__c</leftValueReference>
            </conditions>
        </rules>
    </decisions>
    <formula>Account.Name + Contact__c</formula>
    <status>Active</status>
</Flow>`

const plainFlow = `<Flow>
    <status>Draft</status>
    <recordLookups>
        <field>Email</field>
        <queriedFields>Id</queriedFields>
    </recordLookups>
    <formula>Opportunity.StageName</formula>
</Flow>`

func TestParseNamespacedDocument(t *testing.T) {
	flow, err := Parse("Update_Account_Rating", strings.NewReader(namespacedFlow))
	require.NoError(t, err)

	assert.Equal(t, "Update_Account_Rating", flow.Name)
	assert.Equal(t, "Active", flow.Status)
	assert.Equal(t, []string{
		"$Record.Region__c",
		"Account.Industry",
		"Account.Name",
		"Contact__c",
		"Industry",
		"Rating",
	}, flow.References)
}

func TestParsePlainDocument(t *testing.T) {
	flow, err := Parse("Lookup", strings.NewReader(plainFlow))
	require.NoError(t, err)

	assert.Equal(t, "Draft", flow.Status)
	assert.Equal(t, []string{"Email", "Id", "Opportunity.StageName"}, flow.References)
}

func TestParseIgnoresForeignNamespace(t *testing.T) {
	doc := `<Flow xmlns="urn:a"><x:field xmlns:x="urn:b">Hidden</x:field><field>Shown</field></Flow>`

	flow, err := Parse("ns", strings.NewReader(doc))
	require.NoError(t, err)
	assert.Equal(t, []string{"Shown"}, flow.References)
}

func TestParseDefaultsStatus(t *testing.T) {
	flow, err := Parse("NoStatus", strings.NewReader(`<Flow><field>Name</field></Flow>`))
	require.NoError(t, err)
	assert.Equal(t, UnknownStatus, flow.Status)
}

func TestParseOnlyTopLevelStatus(t *testing.T) {
	doc := `<Flow><screens><status>Nested</status></screens></Flow>`

	flow, err := Parse("Nested", strings.NewReader(doc))
	require.NoError(t, err)
	assert.Equal(t, UnknownStatus, flow.Status)
}

func TestParseDeduplicates(t *testing.T) {
	doc := `<Flow>
		<field>Amount</field>
		<field>Amount</field>
		<formula>Invoice__c + Invoice__c</formula>
		<value><stringValue>Invoice__c</stringValue></value>
	</Flow>`

	flow, err := Parse("Dupes", strings.NewReader(doc))
	require.NoError(t, err)
	assert.Equal(t, []string{"Amount", "Invoice__c"}, flow.References)
}

func TestParseMalformed(t *testing.T) {
	_, err := Parse("Broken", strings.NewReader(`<Flow><field>Name</Flow>`))
	assert.Error(t, err)

	_, err = Parse("Empty", strings.NewReader(""))
	assert.ErrorIs(t, err, ErrEmptyDocument)
}

func TestExtractExpressionReferences(t *testing.T) {
	tests := []struct {
		expr string
		want []string
	}{
		{"Account.Name + Contact__c", []string{"Account.Name", "Contact__c"}},
		{"IF(ISBLANK(Lead.Company), 'n/a', Lead.Company)", []string{"Lead.Company", "Lead.Company"}},
		{"Custom_Object__c.Amount__c * 2", []string{"Custom_Object__c.Amount__c"}},
		{"TODAY() + 30", nil},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractExpressionReferences(tt.expr))
		})
	}
}

func TestParseFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "Route_Case"+FileSuffix)
	require.NoError(t, os.WriteFile(path, []byte(plainFlow), 0o644))

	flow, err := ParseFile(path)
	require.NoError(t, err)
	assert.Equal(t, "Route_Case", flow.Name)
	assert.Equal(t, "Draft", flow.Status)

	_, err = ParseFile(filepath.Join(dir, "missing"+FileSuffix))
	assert.Error(t, err)
}

func TestNameFromPath(t *testing.T) {
	assert.Equal(t, "Route_Case", NameFromPath("/tmp/flows/Route_Case.flow-meta.xml"))
	assert.Equal(t, "Other", NameFromPath("Other.xml"))
}
