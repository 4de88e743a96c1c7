package testutil

import (
	"archive/zip"
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// WritePDF writes a minimal native-text PDF with the given number of pages.
// Each page carries one line of text ("Page N content").
func WritePDF(t *testing.T, path string, pages int) {
	t.Helper()
	texts := make([]string, pages)
	for i := range texts {
		texts[i] = fmt.Sprintf("Page %d content", i+1)
	}
	WritePDFWithText(t, path, texts)
}

// WritePDFWithText writes a native-text PDF with one page per entry.
func WritePDFWithText(t *testing.T, path string, pageTexts []string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, TextPDFBytes(pageTexts), 0o600))
}

// WriteScannedPDF writes a PDF whose pages consist solely of embedded JPEG
// images, mimicking a scanned book with no native text layer.
func WriteScannedPDF(t *testing.T, path string, pageImages []image.Image) {
	t.Helper()
	data, err := ScannedPDFBytes(pageImages)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o600))
}

// TextPDFBytes assembles a valid single-xref PDF with Helvetica text pages.
func TextPDFBytes(pageTexts []string) []byte {
	n := len(pageTexts)

	// Objects: 1 catalog, 2 page tree, 3 font, then (page, content) per page.
	kids := make([]string, n)
	for i := range kids {
		kids[i] = fmt.Sprintf("%d 0 R", 4+2*i)
	}

	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), n),
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>",
	}
	for i, text := range pageTexts {
		content := fmt.Sprintf("BT /F1 12 Tf 72 720 Td (%s) Tj ET", escapePDFString(text))
		objects = append(objects,
			fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] "+
				"/Resources << /Font << /F1 3 0 R >> >> /Contents %d 0 R >>", 5+2*i),
			fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content),
		)
	}

	return assemblePDF(objects, nil)
}

// ScannedPDFBytes assembles a PDF with one full-page JPEG XObject per page.
func ScannedPDFBytes(pageImages []image.Image) ([]byte, error) {
	n := len(pageImages)

	kids := make([]string, n)
	for i := range kids {
		kids[i] = fmt.Sprintf("%d 0 R", 3+3*i)
	}

	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), n),
	}
	binary := make(map[int][]byte)

	for i, img := range pageImages {
		var jpg bytes.Buffer
		if err := jpeg.Encode(&jpg, img, nil); err != nil {
			return nil, err
		}
		b := img.Bounds()

		pageObj := 3 + 3*i
		content := "q 612 0 0 792 0 0 cm /Im0 Do Q"
		objects = append(objects,
			fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] "+
				"/Resources << /XObject << /Im0 %d 0 R >> >> /Contents %d 0 R >>",
				pageObj+1, pageObj+2),
			fmt.Sprintf("<< /Type /XObject /Subtype /Image /Width %d /Height %d "+
				"/ColorSpace /DeviceRGB /BitsPerComponent 8 /Filter /DCTDecode /Length %d >>",
				b.Dx(), b.Dy(), jpg.Len()),
			fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content),
		)
		binary[pageObj+1] = jpg.Bytes()
	}

	return assemblePDF(objects, binary), nil
}

// assemblePDF serializes numbered objects with a correct xref table.
// binaryStreams maps an object number to stream bytes appended between
// "stream" and "endstream" markers for that object.
func assemblePDF(objects []string, binaryStreams map[int][]byte) []byte {
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")

	offsets := make([]int, len(objects)+1)
	for i, obj := range objects {
		num := i + 1
		offsets[num] = buf.Len()
		if data, ok := binaryStreams[num]; ok {
			fmt.Fprintf(&buf, "%d 0 obj\n%s\nstream\n", num, obj)
			buf.Write(data)
			buf.WriteString("\nendstream\nendobj\n")
		} else {
			fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", num, obj)
		}
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objects)+1)
	buf.WriteString("0000000000 65535 f \n")
	for num := 1; num <= len(objects); num++ {
		fmt.Fprintf(&buf, "%010d 00000 n \n", offsets[num])
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n",
		len(objects)+1, xref)

	return buf.Bytes()
}

func escapePDFString(s string) string {
	r := strings.NewReplacer("\\", "\\\\", "(", "\\(", ")", "\\)")
	return r.Replace(s)
}

// WriteEPUB writes a minimal EPUB whose spine has one XHTML chapter per
// entry. Each chapter entry is plain text; blank-line separated blocks
// become paragraphs.
func WriteEPUB(t *testing.T, path string, chapters []string) {
	t.Helper()
	data, err := EPUBBytes(chapters)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o600))
}

// EPUBBytes assembles a minimal EPUB archive in memory.
func EPUBBytes(chapters []string) ([]byte, error) {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)

	// mimetype must be first and uncompressed.
	mt, err := w.CreateHeader(&zip.FileHeader{Name: "mimetype", Method: zip.Store})
	if err != nil {
		return nil, err
	}
	if _, err := mt.Write([]byte("application/epub+zip")); err != nil {
		return nil, err
	}

	if err := writeZipFile(w, "META-INF/container.xml", `<?xml version="1.0" encoding="UTF-8"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>`); err != nil {
		return nil, err
	}

	var manifest, spine strings.Builder
	for i := range chapters {
		fmt.Fprintf(&manifest,
			`    <item id="ch%d" href="ch%d.xhtml" media-type="application/xhtml+xml"/>`+"\n", i+1, i+1)
		fmt.Fprintf(&spine, `    <itemref idref="ch%d"/>`+"\n", i+1)
	}

	if err := writeZipFile(w, "OEBPS/content.opf", fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<package xmlns="http://www.idpf.org/2007/opf" version="2.0" unique-identifier="id">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/">
    <dc:title>Test Book</dc:title>
    <dc:creator>Test Author</dc:creator>
    <dc:language>en</dc:language>
    <dc:identifier id="id">test-book</dc:identifier>
  </metadata>
  <manifest>
%s  </manifest>
  <spine>
%s  </spine>
</package>`, manifest.String(), spine.String())); err != nil {
		return nil, err
	}

	for i, chapter := range chapters {
		var body strings.Builder
		for _, para := range strings.Split(chapter, "\n\n") {
			fmt.Fprintf(&body, "    <p>%s</p>\n", xmlEscape(para))
		}
		if err := writeZipFile(w, fmt.Sprintf("OEBPS/ch%d.xhtml", i+1), fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<html xmlns="http://www.w3.org/1999/xhtml">
  <head><title>Chapter %d</title></head>
  <body>
%s  </body>
</html>`, i+1, body.String())); err != nil {
			return nil, err
		}
	}

	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeZipFile(w *zip.Writer, name, content string) error {
	f, err := w.Create(name)
	if err != nil {
		return err
	}
	_, err = f.Write([]byte(content))
	return err
}

func xmlEscape(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	return r.Replace(s)
}
