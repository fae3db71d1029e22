package receipt

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
	"google.golang.org/api/option"
)

// fakeDrive serves the three Drive calls the archive makes
type fakeDrive struct {
	mu            sync.Mutex
	existing      string
	listQueries   []string
	createdFolder map[string]any
	uploads       []string
	uploadTypes   []string
	uploadStatus  int
}

func (f *fakeDrive) register(server *ghttp.Server) {
	server.RouteToHandler(http.MethodGet, "/drive/v3/files", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.listQueries = append(f.listQueries, r.URL.Query().Get("q"))
		files := []map[string]string{}
		if f.existing != "" {
			files = append(files, map[string]string{"id": f.existing, "name": "existing"})
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"files": files})
	})
	server.RouteToHandler(http.MethodPost, "/drive/v3/files", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		Expect(json.NewDecoder(r.Body).Decode(&f.createdFolder)).To(Succeed())
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"id": "folder-1"})
	})
	server.RouteToHandler(http.MethodPost, "/upload/drive/v3/files", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		body, err := io.ReadAll(r.Body)
		Expect(err).NotTo(HaveOccurred())
		f.uploads = append(f.uploads, string(body))
		f.uploadTypes = append(f.uploadTypes, r.URL.Query().Get("uploadType"))
		w.Header().Set("Content-Type", "application/json")
		if f.uploadStatus != 0 {
			w.WriteHeader(f.uploadStatus)
			json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"code": f.uploadStatus, "message": "denied"}})
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"id": "file-1", "webViewLink": "https://drive.example/file-1"})
	})
}

var _ = Describe("DriveArchive", func() {
	var (
		server  *ghttp.Server
		fake    *fakeDrive
		archive *DriveArchive
		day     time.Time
		saved   string
		err     error
	)

	BeforeEach(func() {
		server = ghttp.NewServer()
		fake = &fakeDrive{}
		fake.register(server)
		day = time.Date(2024, 3, 2, 18, 0, 0, 0, time.UTC)

		var nerr error
		archive, nerr = NewDriveArchive(context.Background(), "root-folder",
			option.WithEndpoint(server.URL()+"/drive/v3/"),
			option.WithoutAuthentication(),
		)
		Expect(nerr).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		server.Close()
	})

	JustBeforeEach(func() {
		saved, err = archive.Save(context.Background(), "abc_invoice.pdf", []byte("%PDF-1.4 receipt"), "application/pdf", day)
	})

	When("the day folder does not exist yet", func() {
		It("creates it under the root folder", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(fake.listQueries).To(HaveLen(1))
			Expect(fake.listQueries[0]).To(ContainSubstring("name = '02/03/2024'"))
			Expect(fake.listQueries[0]).To(ContainSubstring("'root-folder' in parents"))
			Expect(fake.createdFolder).To(HaveKeyWithValue("name", "02/03/2024"))
			Expect(fake.createdFolder).To(HaveKeyWithValue("mimeType", folderMIMEType))
			Expect(fake.createdFolder["parents"]).To(ConsistOf("root-folder"))
		})

		It("uploads the file into the new folder", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(saved).To(Equal("file-1"))
			Expect(fake.uploads).To(HaveLen(1))
			Expect(fake.uploadTypes[0]).To(Equal("multipart"))
			Expect(fake.uploads[0]).To(ContainSubstring(`"folder-1"`))
			Expect(fake.uploads[0]).To(ContainSubstring("abc_invoice.pdf"))
			Expect(fake.uploads[0]).To(ContainSubstring("%PDF-1.4 receipt"))
		})

		It("reuses the folder for the rest of the day", func() {
			Expect(err).NotTo(HaveOccurred())
			_, err = archive.Save(context.Background(), "def_photo.png", []byte("png"), "image/png", day)
			Expect(err).NotTo(HaveOccurred())
			Expect(fake.listQueries).To(HaveLen(1))
			Expect(fake.uploads).To(HaveLen(2))
		})
	})

	When("the day folder already exists", func() {
		BeforeEach(func() {
			fake.existing = "folder-9"
		})

		It("uploads into it without creating another", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(fake.createdFolder).To(BeNil())
			Expect(fake.uploads[0]).To(ContainSubstring(`"folder-9"`))
		})
	})

	When("the upload is rejected", func() {
		BeforeEach(func() {
			fake.uploadStatus = http.StatusForbidden
		})

		It("returns an error", func() {
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("uploading abc_invoice.pdf"))
			Expect(saved).To(BeEmpty())
		})
	})
})

var _ = Describe("NewDriveArchive", func() {
	It("requires a root folder", func() {
		_, err := NewDriveArchive(context.Background(), "", option.WithoutAuthentication())
		Expect(err).To(MatchError(ContainSubstring("root folder")))
	})
})
