package scanning

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("parseCandidateJSON", func() {
	var (
		jsonInput string
		record    CandidateRecord
		err       error
	)

	JustBeforeEach(func() {
		record, err = parseCandidateJSON(jsonInput)
	})

	When("parsing valid JSON", func() {
		BeforeEach(func() {
			jsonInput = `{"date": "2024-03-01", "item": "Widget", "price": "11.75", "qty": 2, "total": "$23.50"}`
		})

		It("keeps every field as printed", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(record).To(Equal(CandidateRecord{
				Date:  "2024-03-01",
				Item:  "Widget",
				Price: "11.75",
				Qty:   "2",
				Total: "$23.50",
			}))
		})
	})

	When("parsing JSON with markdown code blocks", func() {
		BeforeEach(func() {
			jsonInput = "```json\n{\"date\": \"01/03/2024\", \"total\": 10.50}\n```"
		})

		It("strips the fences", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(record.Date).To(Equal("01/03/2024"))
			Expect(record.Total).To(Equal("10.50"))
		})
	})

	When("parsing JSON with extra text around it", func() {
		BeforeEach(func() {
			jsonInput = `Here is the data: {"total": "5.00"} hope it helps`
		})

		It("cuts to the object", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(record.Total).To(Equal("5.00"))
		})
	})

	When("fields are null or placeholders", func() {
		BeforeEach(func() {
			jsonInput = `{"date": null, "item": "N/A", "price": null, "qty": "", "total": "7"}`
		})

		It("leaves them absent", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(record).To(Equal(CandidateRecord{Total: "7"}))
		})
	})

	When("a field has the wrong type", func() {
		BeforeEach(func() {
			jsonInput = `{"total": {"value": 5}}`
		})

		It("fails schema validation", func() {
			Expect(err).To(MatchError(ContainSubstring("schema")))
		})
	})

	When("there is no JSON", func() {
		BeforeEach(func() {
			jsonInput = "I could not read the receipt"
		})

		It("returns an error", func() {
			Expect(err).To(HaveOccurred())
		})
	})

	When("the JSON is malformed", func() {
		BeforeEach(func() {
			jsonInput = `{"total": "5.00",}`
		})

		It("returns an error", func() {
			Expect(err).To(HaveOccurred())
		})
	})
})

var _ = Describe("cleanTranscription", func() {
	It("removes fences", func() {
		Expect(cleanTranscription("```text\nTotal 5.00\n```")).To(Equal("Total 5.00"))
	})

	It("leaves plain text alone", func() {
		Expect(cleanTranscription("  Total 5.00 \n")).To(Equal("Total 5.00"))
	})
})
