package extract

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const wordDocumentXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>
    <w:p><w:r><w:t>Handover checklist</w:t></w:r></w:p>
    <w:p><w:r><w:t>Rotate the service accounts.</w:t></w:r></w:p>
  </w:body>
</w:document>`

func TestPackagedWordText(t *testing.T) {
	path := writeZipFixture(t, []archiveEntry{
		{"[Content_Types].xml", []byte(`<?xml version="1.0"?><Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types"/>`)},
		{"word/document.xml", []byte(wordDocumentXML)},
	})

	adapter := newPackagedWord(Options{OCRDisabled: true})
	res, err := adapter.Extract(context.Background(), path, nil)
	require.NoError(t, err)

	assert.Equal(t, "Handover checklist Rotate the service accounts.", res.Text)
	assert.Nil(t, res.Scratch)
}

func TestPackagedExcelReadsSharedStrings(t *testing.T) {
	path := writeZipFixture(t, []archiveEntry{
		{"xl/sharedStrings.xml", []byte(`<sst><si><t>Payroll</t></si><si><t>FY26</t></si></sst>`)},
		{"xl/worksheets/sheet1.xml", []byte(`<worksheet><sheetData><row><c t="s"><v>0</v></c></row></sheetData></worksheet>`)},
		{"docProps/app.xml", []byte(`<Properties><Application>Excel</Application></Properties>`)},
	})

	adapter := newPackagedExcel(Options{OCRDisabled: true})
	res, err := adapter.Extract(context.Background(), path, nil)
	require.NoError(t, err)

	// docProps is outside the content prefixes and must not leak in.
	assert.Equal(t, "Payroll FY26 0", res.Text)
}

func TestPackagedWordSparseUnpacksMedia(t *testing.T) {
	sm := newScratchManager(t)
	png := []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}
	path := writeZipFixture(t, []archiveEntry{
		{"word/document.xml", []byte(`<w:document xmlns:w="ns"><w:body><w:p><w:r><w:t>scan</w:t></w:r></w:p></w:body></w:document>`)},
		{"word/media/image1.png", png},
		{"word/media/image2.png", png},
	})

	adapter := newPackagedWord(Options{SparseThreshold: 100, MaxImages: 1})
	res, err := adapter.Extract(context.Background(), path, sm)
	require.NoError(t, err)

	assert.Equal(t, "scan", res.Text)
	require.NotNil(t, res.Scratch)
	defer func() { _ = res.Scratch.Release() }()

	names, err := listDirNames(res.Scratch.Path())
	require.NoError(t, err)
	require.Len(t, names, 1, "media extraction respects the image cap")
	assert.Equal(t, "word_media_image1.png", names[0])
}

func TestPackagedWordRichTextSkipsMedia(t *testing.T) {
	sm := newScratchManager(t)
	path := writeZipFixture(t, []archiveEntry{
		{"word/document.xml", []byte(`<w:document xmlns:w="ns"><w:body><w:p><w:r><w:t>` +
			`This paragraph is comfortably longer than the sparse threshold used below.` +
			`</w:t></w:r></w:p></w:body></w:document>`)},
		{"word/media/image1.png", []byte{0x89, 'P', 'N', 'G'}},
	})

	adapter := newPackagedWord(Options{SparseThreshold: 10, MaxImages: 8})
	res, err := adapter.Extract(context.Background(), path, sm)
	require.NoError(t, err)
	assert.Nil(t, res.Scratch)
}

func TestPackagedOfficeRejectsNonZip(t *testing.T) {
	path := writeFixture(t, "fake.docx", []byte("plain bytes, not a package"))

	_, err := newPackagedWord(Options{OCRDisabled: true}).Extract(context.Background(), path, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open packaged document")
}

func TestFlattenEntryName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"word/media/image1.png", "word_media_image1.png"},
		{`word\media\image1.png`, "word_media_image1.png"},
		{"/etc/passwd", "etc_passwd"},
		{"a/../b.txt", "b.txt"},
		{"../../escape.txt", "____escape.txt"},
		{"", "entry"},
		{".", "entry"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, flattenEntryName(tt.in), "input %q", tt.in)
	}
}
