package epub

import (
	"strings"
)

const (
	encryptionPath = "META-INF/encryption.xml"
	sinfPath       = "META-INF/sinf.xml"
)

// font obfuscation is not protection, such books can be split
var obfuscationAlgorithms = map[string]bool{
	"http://www.idpf.org/2008/embedding": true,
	"http://ns.adobe.com/pdf/enc#RC":     true,
}

func (b *Book) findInsensitive(name string) (string, bool) {
	if _, ok := b.files[name]; ok {
		return name, true
	}
	for _, n := range b.names {
		if strings.EqualFold(n, name) {
			return n, true
		}
	}
	return "", false
}

// checkDRM rejects books with Apple FairPlay marker or with encrypted
// entries other than obfuscated fonts. Unparsable encryption descriptor is
// treated as protection.
func (b *Book) checkDRM() error {
	if _, ok := b.findInsensitive(sinfPath); ok {
		return ErrDRMProtected
	}
	name, ok := b.findInsensitive(encryptionPath)
	if !ok {
		return nil
	}
	doc, err := b.readXML(name)
	if err != nil {
		return ErrDRMProtected
	}
	for _, method := range doc.FindElements("//EncryptedData/EncryptionMethod") {
		if !obfuscationAlgorithms[strings.TrimSpace(method.SelectAttrValue("Algorithm", ""))] {
			return ErrDRMProtected
		}
	}
	return nil
}
