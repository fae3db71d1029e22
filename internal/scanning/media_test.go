package scanning

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("DetectMIME", func() {
	It("uses the declared hint", func() {
		Expect(DetectMIME(RawMedia{MIMEType: "image/jpeg"})).To(Equal("image/jpeg"))
	})

	It("normalises case and parameters", func() {
		Expect(DetectMIME(RawMedia{MIMEType: "Application/PDF; charset=binary"})).To(Equal("application/pdf"))
	})

	It("maps image/jpg to image/jpeg", func() {
		Expect(DetectMIME(RawMedia{MIMEType: "image/jpg"})).To(Equal("image/jpeg"))
	})

	It("falls back to the filename extension", func() {
		Expect(DetectMIME(RawMedia{Filename: "receipt.HEIC"})).To(Equal("image/heic"))
	})

	It("sniffs content when there is no hint", func() {
		Expect(DetectMIME(RawMedia{Data: []byte("%PDF-1.4 ...")})).To(Equal("application/pdf"))
		Expect(DetectMIME(RawMedia{Data: tinyPNG(), MIMEType: "application/octet-stream"})).To(Equal("image/png"))
	})

	It("trusts PDF magic over a conflicting hint", func() {
		Expect(DetectMIME(RawMedia{Data: []byte("%PDF-1.7"), MIMEType: "image/png"})).To(Equal("application/pdf"))
	})

	It("returns empty for unknown content", func() {
		Expect(DetectMIME(RawMedia{Data: []byte("hello")})).To(BeEmpty())
	})
})
