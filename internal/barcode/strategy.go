package barcode

import (
	"strings"

	"mizpos/terminal/internal/domain"
)

// Strategy derives the stored barcode pair for a catalog record that did not
// ship with explicit codes. The encoding depends on regional retail
// conventions, so it is pluggable; ISDNStrategy implements the convention the
// catalog service itself uses.
type Strategy interface {
	Derive(remote domain.RemoteProduct) (primary string, secondary string)
}

// ISDNStrategy derives JAN codes from an ISDN or ISBN: the first row is the
// hyphen-stripped catalog number, the second row embeds C-code and price.
// Records with neither identifier get no primary code (unscannable but
// browsable).
type ISDNStrategy struct{}

func (ISDNStrategy) Derive(remote domain.RemoteProduct) (string, string) {
	source := strings.TrimSpace(remote.ISDN)
	if source == "" {
		source = strings.TrimSpace(remote.ISBN)
	}
	if source == "" {
		return "", ""
	}

	primary := FromISDN(source)
	secondary := ""
	if remote.IsBook == nil || *remote.IsBook {
		secondary = Secondary(remote.CCode, remote.Price)
	}
	return primary, secondary
}

// Info assembles the label-printing view of a product, generating an
// in-store code when the product has no assigned barcode.
func Info(product domain.Product) domain.BarcodeInfo {
	info := domain.BarcodeInfo{
		ISDN:        product.ISDN,
		JANBarcode1: product.JANCode,
		JANBarcode2: product.JANCode2,
		IsBook:      product.IsBook,
	}
	if info.JANBarcode1 == "" {
		info.JANBarcode1 = Instore(product.ID, product.Price)
	}
	if product.IsBook {
		if info.JANBarcode2 == "" {
			info.JANBarcode2 = Secondary(DefaultCCode, product.Price)
		}
		if product.ISDN != "" {
			info.ISDNFormatted = FormatISDNWithPrice(product.ISDN, DefaultCCode, product.Price)
		}
	} else {
		info.JANBarcode2 = ""
	}
	return info
}
