package models

import "encoding/xml"

// Header is the fixed envelope header every protocol message carries.
// All five fields are mandatory; an envelope missing any of them is
// rejected before dispatch.
type Header struct {
	Sender      string `xml:"Sender"`
	Receiver    string `xml:"Receiver"`
	FSPCode     string `xml:"FSPCode"`
	MsgId       string `xml:"MsgId"`
	MessageType string `xml:"MessageType"`
}

// Document is the outer signed envelope:
// Document/Data{Header,MessageDetails} + Document/Signature.
type Document struct {
	XMLName   xml.Name `xml:"Document"`
	Data      Data     `xml:"Data"`
	Signature string   `xml:"Signature"`
}

type Data struct {
	Header         Header         `xml:"Header"`
	MessageDetails MessageDetails `xml:"MessageDetails"`
}

// MessageDetails keeps the type-specific body as raw inner XML; the
// dispatcher decodes it into the typed struct for the message type.
type MessageDetails struct {
	Inner []byte `xml:",innerxml"`
}
