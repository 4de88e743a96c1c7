package epub

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"io"
	"path"
)

// Metadata is the Dublin Core subset the reader cares about.
type Metadata struct {
	Title      string
	Creator    string
	Language   string
	Identifier string
}

// ManifestItem is one resource declared in the OPF manifest.
type ManifestItem struct {
	ID        string `xml:"id,attr"`
	Href      string `xml:"href,attr"`
	MediaType string `xml:"media-type,attr"`
}

// SpineItem is one reading-order reference into the manifest.
type SpineItem struct {
	IDRef string `xml:"idref,attr"`
}

// OPF is the parsed Open Package Format document.
type OPF struct {
	Metadata Metadata
	Manifest map[string]ManifestItem // id -> item
	Spine    []SpineItem
	// Dir is the directory of the OPF file inside the archive; manifest
	// hrefs are relative to it.
	Dir string
}

type opfXML struct {
	Metadata struct {
		Title      string `xml:"title"`
		Creator    string `xml:"creator"`
		Language   string `xml:"language"`
		Identifier string `xml:"identifier"`
	} `xml:"metadata"`
	Manifest struct {
		Items []ManifestItem `xml:"item"`
	} `xml:"manifest"`
	Spine struct {
		Items []SpineItem `xml:"itemref"`
	} `xml:"spine"`
}

type containerXML struct {
	Rootfiles struct {
		Rootfile []struct {
			FullPath  string `xml:"full-path,attr"`
			MediaType string `xml:"media-type,attr"`
		} `xml:"rootfile"`
	} `xml:"rootfiles"`
}

// parseOPF locates the package document via META-INF/container.xml and
// parses its metadata, manifest, and spine.
func parseOPF(archive *zip.Reader) (*OPF, error) {
	container, err := readArchiveFile(archive, "META-INF/container.xml")
	if err != nil {
		return nil, fmt.Errorf("missing container.xml: %w", err)
	}

	var c containerXML
	if err := xml.Unmarshal(container, &c); err != nil {
		return nil, fmt.Errorf("malformed container.xml: %w", err)
	}
	if len(c.Rootfiles.Rootfile) == 0 {
		return nil, fmt.Errorf("container.xml declares no rootfile")
	}
	opfPath := c.Rootfiles.Rootfile[0].FullPath

	raw, err := readArchiveFile(archive, opfPath)
	if err != nil {
		return nil, fmt.Errorf("missing package document %s: %w", opfPath, err)
	}

	var parsed opfXML
	if err := xml.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("malformed package document %s: %w", opfPath, err)
	}
	if len(parsed.Spine.Items) == 0 {
		return nil, fmt.Errorf("package document has an empty spine")
	}

	opf := &OPF{
		Metadata: Metadata{
			Title:      parsed.Metadata.Title,
			Creator:    parsed.Metadata.Creator,
			Language:   parsed.Metadata.Language,
			Identifier: parsed.Metadata.Identifier,
		},
		Manifest: make(map[string]ManifestItem, len(parsed.Manifest.Items)),
		Spine:    parsed.Spine.Items,
		Dir:      path.Dir(opfPath),
	}
	for _, item := range parsed.Manifest.Items {
		opf.Manifest[item.ID] = item
	}
	return opf, nil
}

// chapterPath resolves a spine item to its archive path.
func (o *OPF) chapterPath(item SpineItem) (string, bool) {
	m, ok := o.Manifest[item.IDRef]
	if !ok {
		return "", false
	}
	if o.Dir == "." || o.Dir == "" {
		return m.Href, true
	}
	return path.Join(o.Dir, m.Href), true
}

func readArchiveFile(archive *zip.Reader, name string) ([]byte, error) {
	for _, f := range archive.File {
		if f.Name == name {
			rc, err := f.Open()
			if err != nil {
				return nil, err
			}
			defer func() { _ = rc.Close() }()
			return io.ReadAll(rc)
		}
	}
	return nil, fmt.Errorf("file %s not in archive", name)
}
