package envelope

import (
	"bytes"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"encoding/xml"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/uswegem/miracore/internal/pkg/consts"
	"github.com/uswegem/miracore/internal/pkg/models"
)

// Codec signs outbound and verifies inbound protocol envelopes. The
// canonical form of an envelope is the exact raw bytes of its
// <Data>...</Data> element as transmitted; the Signature element holds
// base64(RSA-PKCS1v15-SHA256) over those bytes. Re-serializing before
// verification would break signatures produced by other stacks, so the
// Data element is taken verbatim from the wire.
type Codec struct {
	fspCode   string
	fspName   string
	signKey   *rsa.PrivateKey
	verifyKey *rsa.PublicKey
}

// ParsedMessage is a verified inbound envelope. Details is the full
// <MessageDetails> element, decoded per message type by the dispatcher.
type ParsedMessage struct {
	Header  models.Header
	Details []byte
	Raw     []byte
}

func NewCodec(fspCode, fspName, signKeyPEM, verifyKeyPEM string) (*Codec, error) {
	signKey, err := parsePrivateKey(signKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("parsing FSP signing key: %w", err)
	}
	verifyKey, err := parsePublicKey(verifyKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("parsing ESS verification key: %w", err)
	}
	return &Codec{fspCode: fspCode, fspName: fspName, signKey: signKey, verifyKey: verifyKey}, nil
}

// NewCodecWithKeys wires parsed keys directly, used by tests.
func NewCodecWithKeys(fspCode, fspName string, signKey *rsa.PrivateKey, verifyKey *rsa.PublicKey) *Codec {
	return &Codec{fspCode: fspCode, fspName: fspName, signKey: signKey, verifyKey: verifyKey}
}

// Verify authenticates a raw envelope. It rejects envelopes whose
// signature does not match the canonical Data bytes and envelopes
// missing any Header field.
func (c *Codec) Verify(raw []byte) (*ParsedMessage, error) {
	canonical, err := extractData(raw)
	if err != nil {
		return nil, models.NewStructuralError(err.Error(), consts.CodeMalformedEnvelope)
	}

	var doc models.Document
	if err := xml.Unmarshal(raw, &doc); err != nil {
		return nil, models.NewStructuralError(fmt.Sprintf("unparseable envelope: %v", err), consts.CodeMalformedEnvelope)
	}

	if missing := missingHeaderField(doc.Data.Header); missing != "" {
		return nil, models.NewStructuralError(fmt.Sprintf("missing header field %s", missing), consts.CodeMissingHeader)
	}

	signature := strings.TrimSpace(doc.Signature)
	if signature == "" {
		return nil, models.NewStructuralError("envelope is unsigned", consts.CodeInvalidSignature)
	}
	sig, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return nil, models.NewStructuralError("signature is not valid base64", consts.CodeInvalidSignature)
	}

	digest := sha256.Sum256(canonical)
	if err := rsa.VerifyPKCS1v15(c.verifyKey, crypto.SHA256, digest[:], sig); err != nil {
		return nil, models.NewStructuralError("signature verification failed", consts.CodeInvalidSignature)
	}

	details := append([]byte("<MessageDetails>"), doc.Data.MessageDetails.Inner...)
	details = append(details, []byte("</MessageDetails>")...)

	return &ParsedMessage{
		Header:  doc.Data.Header,
		Details: details,
		Raw:     raw,
	}, nil
}

// Sign produces a complete signed Document for an outbound message.
// details must marshal to a <MessageDetails> element. A fresh
// type-tagged MsgId is generated for every call.
func (c *Codec) Sign(msgType consts.MessageType, receiver string, details interface{}) (string, error) {
	header := models.Header{
		Sender:      c.fspName,
		Receiver:    receiver,
		FSPCode:     c.fspCode,
		MsgId:       NewMsgID(c.fspCode, msgType),
		MessageType: string(msgType),
	}
	return c.signWithHeader(header, details)
}

// SignResponse builds the synchronous RESPONSE envelope answering an
// inbound message. Error paths go through here too: the counterparty
// always receives a signed envelope.
func (c *Codec) SignResponse(in models.Header, code int, applicationNumber, fspReference string) (string, error) {
	details := models.ResponseDetails{
		ResponseCode:       code,
		Description:        consts.ResponseDescription(code),
		ApplicationNumber:  applicationNumber,
		FSPReferenceNumber: fspReference,
	}
	header := models.Header{
		Sender:      c.fspName,
		Receiver:    in.Sender,
		FSPCode:     c.fspCode,
		MsgId:       NewMsgID(c.fspCode, consts.ResponseMessage),
		MessageType: string(consts.ResponseMessage),
	}
	if header.Receiver == "" {
		header.Receiver = "ESS_UTUMISHI"
	}
	return c.signWithHeader(header, details)
}

func (c *Codec) signWithHeader(header models.Header, details interface{}) (string, error) {
	headerXML, err := xml.Marshal(headerElem{Header: header})
	if err != nil {
		return "", err
	}
	detailsXML, err := xml.Marshal(details)
	if err != nil {
		return "", err
	}
	if !bytes.HasPrefix(detailsXML, []byte("<MessageDetails")) {
		return "", fmt.Errorf("message details must marshal to a MessageDetails element")
	}

	var data bytes.Buffer
	data.WriteString("<Data>")
	data.Write(headerXML)
	data.Write(detailsXML)
	data.WriteString("</Data>")

	digest := sha256.Sum256(data.Bytes())
	sig, err := rsa.SignPKCS1v15(rand.Reader, c.signKey, crypto.SHA256, digest[:])
	if err != nil {
		return "", err
	}

	var out bytes.Buffer
	out.WriteString(xml.Header)
	out.WriteString("<Document>")
	out.Write(data.Bytes())
	out.WriteString("<Signature>")
	out.WriteString(base64.StdEncoding.EncodeToString(sig))
	out.WriteString("</Signature></Document>")
	return out.String(), nil
}

type headerElem struct {
	XMLName xml.Name `xml:"Header"`
	models.Header
}

// msgTypeTags tag outbound message ids so a MsgId alone reveals what
// kind of message it belongs to.
var msgTypeTags = map[consts.MessageType]string{
	consts.ResponseMessage:                   "RES",
	consts.LoanChargesResponse:               "CHR",
	consts.LoanInitialApprovalNotification:   "IAN",
	consts.LoanDisbursementNotification:      "LDN",
	consts.LoanTopUpBalanceResponse:          "TUB",
	consts.LoanTakeoverBalanceResponse:       "TOB",
	consts.PaymentAcknowledgmentNotification: "PAN",
}

// NewMsgID returns a fresh type-tagged message id.
func NewMsgID(fspCode string, msgType consts.MessageType) string {
	tag, ok := msgTypeTags[msgType]
	if !ok {
		tag = "GEN"
	}
	id := strings.ReplaceAll(uuid.New().String(), "-", "")
	return fmt.Sprintf("%s%s%d%s", fspCode, tag, time.Now().Unix(), id[:12])
}

// extractData returns the exact <Data>...</Data> bytes as transmitted.
func extractData(raw []byte) ([]byte, error) {
	start := bytes.Index(raw, []byte("<Data>"))
	end := bytes.LastIndex(raw, []byte("</Data>"))
	if start < 0 || end < 0 || end < start {
		return nil, fmt.Errorf("envelope has no Data element")
	}
	return raw[start : end+len("</Data>")], nil
}

func missingHeaderField(h models.Header) string {
	switch {
	case strings.TrimSpace(h.Sender) == "":
		return "Sender"
	case strings.TrimSpace(h.Receiver) == "":
		return "Receiver"
	case strings.TrimSpace(h.FSPCode) == "":
		return "FSPCode"
	case strings.TrimSpace(h.MsgId) == "":
		return "MsgId"
	case strings.TrimSpace(h.MessageType) == "":
		return "MessageType"
	}
	return ""
}

func parsePrivateKey(pemContent string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(pemContent))
	if block == nil {
		return nil, fmt.Errorf("no PEM block found")
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("not an RSA private key")
	}
	return key, nil
}

func parsePublicKey(pemContent string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemContent))
	if block == nil {
		return nil, fmt.Errorf("no PEM block found")
	}
	if key, err := x509.ParsePKCS1PublicKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	key, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("not an RSA public key")
	}
	return key, nil
}
