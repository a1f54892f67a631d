package common

import "fmt"

// QnsTest selects the application protocol of a transfer, named after the QUIC interop runner test cases.
type QnsTest string

const (
	QnsTestTransfer QnsTest = "transfer"
	QnsTestHTTP3    QnsTest = "http3"
)

func ParseQnsTest(s string) (QnsTest, error) {
	switch QnsTest(s) {
	case "", QnsTestTransfer:
		return QnsTestTransfer, nil
	case QnsTestHTTP3:
		return QnsTestHTTP3, nil
	default:
		return "", fmt.Errorf("unsupported qns-test %q", s)
	}
}
