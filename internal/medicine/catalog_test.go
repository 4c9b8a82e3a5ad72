package medicine

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleCSV = `id,name,price,manufacturer_name,type,short_composition1,short_composition2
1,Paracetamol,12.5,Cipla Ltd,allopathy,Paracetamol (500mg),
2,Ibuprofen,30,Abbott,allopathy,Ibuprofen (400mg),
3, ,10,Unknown,allopathy,,
4,Augmentin 625 Duo Tablet,223.42,Glaxo SmithKline Pharmaceuticals Ltd,allopathy,Amoxycillin (500mg),Clavulanic Acid (125mg)
5,PARACETAMOL,15,Other,allopathy,Paracetamol (650mg),
`

func TestRead(t *testing.T) {
	c, err := Read(strings.NewReader(sampleCSV))
	require.NoError(t, err)

	assert.Equal(t, 3, c.Len())
	assert.Equal(t, []string{"Paracetamol", "Ibuprofen", "Augmentin 625 Duo Tablet"}, c.Names())

	m, err := c.Lookup("  augmentin 625 duo TABLET ")
	require.NoError(t, err)
	assert.Equal(t, "Glaxo SmithKline Pharmaceuticals Ltd", m.Manufacturer)
	assert.Equal(t, "Amoxycillin (500mg) + Clavulanic Acid (125mg)", m.Composition())

	m, err = c.Lookup("paracetamol")
	require.NoError(t, err)
	assert.Equal(t, "Cipla Ltd", m.Manufacturer, "first row wins")
	assert.Equal(t, "Paracetamol (500mg)", m.Composition())

	_, err = c.Lookup("Aspirin")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestRead_NameOnly(t *testing.T) {
	c, err := Read(strings.NewReader("Name\nCetirizine\nOmeprazole\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"Cetirizine", "Omeprazole"}, c.Names())
}

func TestRead_Errors(t *testing.T) {
	_, err := Read(strings.NewReader(""))
	assert.Error(t, err)

	_, err = Read(strings.NewReader("id,type\n1,allopathy\n"))
	assert.ErrorContains(t, err, `"name"`)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "medicines.csv")
	require.NoError(t, os.WriteFile(path, []byte(sampleCSV), 0o600))

	c, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, c.Len())

	_, err = Load(filepath.Join(t.TempDir(), "missing.csv"), nil)
	assert.Error(t, err)
}

func TestHead(t *testing.T) {
	c, err := Read(strings.NewReader(sampleCSV))
	require.NoError(t, err)

	assert.Len(t, c.Head(2), 2)
	assert.Len(t, c.Head(100), 3)
	assert.Empty(t, c.Head(0))

	var nilCatalog *Catalog
	assert.Zero(t, nilCatalog.Len())
	assert.Empty(t, nilCatalog.Head(5))
}
