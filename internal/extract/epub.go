package extract

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/klauspost/compress/zip"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const containerPath = "META-INF/container.xml"

type epubText struct{}

type container struct {
	Rootfiles []struct {
		FullPath string `xml:"full-path,attr"`
	} `xml:"rootfiles>rootfile"`
}

type packageDoc struct {
	Manifest []struct {
		ID        string `xml:"id,attr"`
		Href      string `xml:"href,attr"`
		MediaType string `xml:"media-type,attr"`
	} `xml:"manifest>item"`
	Spine []struct {
		IDRef string `xml:"idref,attr"`
	} `xml:"spine>itemref"`
}

// Extract concatenates the visible text of every document item in reading
// order, one item per line.
func (epubText) Extract(content []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("open epub: %w", err)
	}
	files := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		files[f.Name] = f
	}

	docs, err := documentOrder(files)
	if err != nil {
		return "", err
	}
	var parts []string
	for _, name := range docs {
		f, ok := files[name]
		if !ok {
			continue
		}
		data, err := readZipFile(f)
		if err != nil {
			return "", err
		}
		text, err := visibleText(data)
		if err != nil {
			return "", fmt.Errorf("parse %s: %w", name, err)
		}
		parts = append(parts, text)
	}
	return strings.Join(parts, "\n"), nil
}

// documentOrder lists document items by spine order, falling back to manifest
// order when the spine is empty.
func documentOrder(files map[string]*zip.File) ([]string, error) {
	cf, ok := files[containerPath]
	if !ok {
		return nil, errors.New("epub has no container.xml")
	}
	data, err := readZipFile(cf)
	if err != nil {
		return nil, err
	}
	var c container
	if err := xml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse container: %w", err)
	}
	if len(c.Rootfiles) == 0 || c.Rootfiles[0].FullPath == "" {
		return nil, errors.New("epub container lists no package document")
	}
	opfPath := c.Rootfiles[0].FullPath
	of, ok := files[opfPath]
	if !ok {
		return nil, fmt.Errorf("epub package document %s missing", opfPath)
	}
	data, err = readZipFile(of)
	if err != nil {
		return nil, err
	}
	var pkg packageDoc
	if err := xml.Unmarshal(data, &pkg); err != nil {
		return nil, fmt.Errorf("parse package document: %w", err)
	}

	base := path.Dir(opfPath)
	hrefs := make(map[string]string, len(pkg.Manifest))
	var manifestOrder []string
	for _, item := range pkg.Manifest {
		if !isDocument(item.MediaType) {
			continue
		}
		full := path.Join(base, item.Href)
		hrefs[item.ID] = full
		manifestOrder = append(manifestOrder, full)
	}

	var order []string
	for _, ref := range pkg.Spine {
		if full, ok := hrefs[ref.IDRef]; ok {
			order = append(order, full)
		}
	}
	if len(order) == 0 {
		order = manifestOrder
	}
	return order, nil
}

func isDocument(mediaType string) bool {
	switch mediaType {
	case "application/xhtml+xml", "text/html":
		return true
	}
	return false
}

func readZipFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", f.Name, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", f.Name, err)
	}
	return data, nil
}

// visibleText returns the text nodes of an (X)HTML document, skipping the
// head, scripts and styles.
func visibleText(data []byte) (string, error) {
	doc, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Head, atom.Script, atom.Style:
				return
			}
		}
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return b.String(), nil
}
