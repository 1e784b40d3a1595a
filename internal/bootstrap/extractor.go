package bootstrap

import (
	"bytes"
	"context"

	"gopherai-docqa/internal/app"
	"gopherai-docqa/internal/model"
	"gopherai-docqa/internal/pkg/pdfextract"
)

// PDFExtractor turns an uploaded PDF into ingest elements with element
// type, page and bounding box.
type PDFExtractor struct{}

func (PDFExtractor) Extract(_ context.Context, data []byte) (string, []app.IngestElement, error) {
	doc, err := pdfextract.Extract(bytes.NewReader(data))
	if err != nil {
		return "", nil, err
	}
	return doc.Text, ToIngestElements(doc.Elements), nil
}

// ToIngestElements maps layout elements onto structural metadata.
func ToIngestElements(elements []pdfextract.Element) []app.IngestElement {
	out := make([]app.IngestElement, 0, len(elements))
	for _, el := range elements {
		et := elementType(el.Kind)
		pageNo := el.Page
		id := el.ID
		out = append(out, app.IngestElement{
			Content: el.Text,
			Metadata: model.StructuralMetadata{
				ElementType: &et,
				PageNumber:  &pageNo,
				BoundingBox: &model.BoundingBox{X1: el.Box[0], Y1: el.Box[1], X2: el.Box[2], Y2: el.Box[3]},
				ElementID:   &id,
			},
		})
	}
	return out
}

func elementType(kind string) model.ElementType {
	switch kind {
	case pdfextract.KindTitle:
		return model.ElementTitle
	case pdfextract.KindListItem:
		return model.ElementListItem
	default:
		return model.ElementParagraph
	}
}
