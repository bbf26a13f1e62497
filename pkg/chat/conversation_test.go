package chat_test

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/killallgit/normachat/pkg/chat"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Conversation", func() {
	var (
		now  time.Time
		conv chat.Conversation
	)

	BeforeEach(func() {
		now = time.Date(2024, 3, 8, 10, 30, 0, 0, time.UTC)
		conv = chat.Conversation{
			ID:          "c-1",
			Title:       "Despidos",
			ChatType:    "normativa_nacional",
			CreatedAt:   now.Add(-time.Hour),
			UpdatedAt:   now.Add(-time.Hour),
			TotalTokens: 40,
		}
	})

	Describe("NewConversationFromExchange", func() {
		It("should title the conversation after the question", func() {
			user := chat.NewUserMessage("¿Cuál es el plazo de preaviso?")
			user.Tokens = 12
			assistant := chat.NewAssistantMessage("El preaviso es de 15 días durante el período de prueba.")
			assistant.Tokens = 30

			c := chat.NewConversationFromExchange("s-9", "laboral", user, assistant, now)

			Expect(c.ID).To(Equal("s-9"))
			Expect(c.Title).To(Equal("¿Cuál es el plazo de preaviso?"))
			Expect(c.ChatType).To(Equal("laboral"))
			Expect(c.Snippet).To(HavePrefix("El preaviso"))
			Expect(c.CreatedAt).To(Equal(now))
			Expect(c.UpdatedAt).To(Equal(now))
			Expect(c.TotalTokens).To(Equal(42))
			Expect(c.Archived).To(BeFalse())
		})

		It("should collapse whitespace and shorten long titles", func() {
			long := strings.Repeat("artículo   catorce\n", 10)
			c := chat.NewConversationFromExchange("s", "", chat.NewUserMessage(long), chat.NewAssistantMessage("ok"), now)

			Expect(c.Title).ToNot(ContainSubstring("  "))
			Expect(c.Title).ToNot(ContainSubstring("\n"))
			Expect(c.Title).To(HaveSuffix("…"))
			Expect(utf8.RuneCountInString(c.Title)).To(BeNumerically("<=", 60))
		})
	})

	Describe("Rename", func() {
		It("should trim the title and bump the update time", func() {
			renamed := chat.Rename(conv, "  Indemnización  ", now)

			Expect(renamed.Title).To(Equal("Indemnización"))
			Expect(renamed.UpdatedAt).To(Equal(now))
			Expect(conv.Title).To(Equal("Despidos"))
		})
	})

	Describe("Archive", func() {
		It("should toggle the archived flag both ways", func() {
			archived := chat.Archive(conv, true, now)
			Expect(archived.Archived).To(BeTrue())
			Expect(archived.UpdatedAt).To(Equal(now))

			restored := chat.Archive(archived, false, now.Add(time.Minute))
			Expect(restored.Archived).To(BeFalse())
			Expect(restored.UpdatedAt).To(Equal(now.Add(time.Minute)))
		})
	})

	Describe("Touch", func() {
		It("should refresh the snippet and add the reply tokens", func() {
			reply := chat.NewAssistantMessage("Ver artículo 245 de la Ley 20744.")
			reply.Tokens = 10

			touched := chat.Touch(conv, reply, now)

			Expect(touched.Snippet).To(Equal("Ver artículo 245 de la Ley 20744."))
			Expect(touched.TotalTokens).To(Equal(50))
			Expect(touched.UpdatedAt).To(Equal(now))
			Expect(touched.Title).To(Equal(conv.Title))
		})
	})
})
