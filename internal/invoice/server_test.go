package invoice

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/url"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
	"github.com/xuri/excelize/v2"
)

// newSessionClient returns an HTTP client that keeps the session cookie
func newSessionClient() *http.Client {
	jar, err := cookiejar.New(nil)
	Expect(err).NotTo(HaveOccurred())
	return &http.Client{Jar: jar}
}

// multipartUpload builds a multipart body with one part per file
func multipartUpload(files map[string][]byte) (*bytes.Buffer, string) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for name, data := range files {
		part, err := writer.CreateFormFile("files", name)
		Expect(err).NotTo(HaveOccurred())
		_, err = part.Write(data)
		Expect(err).NotTo(HaveOccurred())
	}
	Expect(writer.Close()).NotTo(HaveOccurred())
	return body, writer.FormDataContentType()
}

// formFileHeader round-trips one CreateFormFile part through a multipart
// reader to obtain the header a server handler would see
func formFileHeader(filename string) *multipart.FileHeader {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	_, err := writer.CreateFormFile("files", filename)
	Expect(err).NotTo(HaveOccurred())
	Expect(writer.Close()).NotTo(HaveOccurred())

	form, err := multipart.NewReader(body, writer.Boundary()).ReadForm(1 << 20)
	Expect(err).NotTo(HaveOccurred())
	headers := form.File["files"]
	Expect(headers).To(HaveLen(1))
	return headers[0]
}

var _ = Describe("sniffContentType", func() {
	It("resolves PNG from the extension when the client sends the multipart default", func() {
		// multipart.Writer.CreateFormFile stamps application/octet-stream
		header := formFileHeader("invoice.png")
		Expect(header.Header.Get("Content-Type")).To(Equal("application/octet-stream"))
		Expect(sniffContentType(header)).To(Equal("image/png"))
	})

	It("resolves JPEG from the extension regardless of case", func() {
		Expect(sniffContentType(formFileHeader("scan.JPG"))).To(Equal("image/jpeg"))
		Expect(sniffContentType(formFileHeader("scan.jpeg"))).To(Equal("image/jpeg"))
	})

	It("keeps application/octet-stream for unknown extensions", func() {
		Expect(sniffContentType(formFileHeader("notes.txt"))).To(Equal("application/octet-stream"))
	})

	It("trusts an explicit image content type", func() {
		header := formFileHeader("upload.bin")
		header.Header.Set("Content-Type", "image/jpeg")
		Expect(sniffContentType(header)).To(Equal("image/jpeg"))
	})
})

var _ = Describe("Server", func() {
	var (
		extractor   *mockExtractor
		service     *Service
		server      *Server
		auth        BasicAuth
		client      *http.Client
		ghttpServer *ghttp.Server
	)

	// startServer points the test server at the current Server instance.
	// The full mux handles every route, so ghttp's per-request handler
	// queue is bypassed.
	startServer := func() {
		if ghttpServer != nil {
			ghttpServer.Close()
		}
		ghttpServer = ghttp.NewUnstartedServer()
		ghttpServer.HTTPTestServer.Config.Handler = server
		ghttpServer.Start()
	}

	BeforeEach(func() {
		extractor = newMockExtractor()
		service = NewService(extractor, NewManager(), "", 1<<20)
		auth = BasicAuth{}
		server = NewServerWithMux(service, auth, http.NewServeMux())
		client = newSessionClient()
		startServer()
	})

	AfterEach(func() {
		if ghttpServer != nil {
			ghttpServer.Close()
			ghttpServer = nil
		}
	})

	upload := func(files map[string][]byte) (*http.Response, UploadResponse) {
		body, contentType := multipartUpload(files)
		resp, err := client.Post(ghttpServer.URL()+"/api/invoices", contentType, body)
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()

		var result UploadResponse
		data, err := io.ReadAll(resp.Body)
		Expect(err).NotTo(HaveOccurred())
		if len(data) > 0 {
			Expect(json.Unmarshal(data, &result)).NotTo(HaveOccurred())
		}
		return resp, result
	}

	Describe("handleIndex", func() {
		It("should serve the embedded UI", func() {
			resp, err := client.Get(ghttpServer.URL() + "/")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(body)).To(ContainSubstring("InvoiceIntel"))
		})
	})

	Describe("handleUploadInvoices", func() {
		When("a single image is uploaded", func() {
			It("should return the created record", func() {
				resp, result := upload(map[string][]byte{"invoice.png": []byte("fake png")})
				Expect(resp.StatusCode).To(Equal(http.StatusCreated))
				Expect(result.Records).To(HaveLen(1))
				Expect(result.Records[0].Vendor).To(Equal("Starbucks"))
				Expect(result.Failures).To(BeEmpty())
			})

			It("should set a session cookie", func() {
				upload(map[string][]byte{"invoice.png": []byte("fake png")})

				serverURL, err := url.Parse(ghttpServer.URL())
				Expect(err).NotTo(HaveOccurred())
				cookies := client.Jar.Cookies(serverURL)
				Expect(cookies).NotTo(BeEmpty())
				Expect(cookies[0].Name).To(Equal("invoice_intel_session"))
			})
		})

		When("a file has an unsupported type", func() {
			It("should skip it and continue with the rest", func() {
				resp, result := upload(map[string][]byte{
					"invoice.png": []byte("fake png"),
					"notes.txt":   []byte("plain text"),
				})
				Expect(resp.StatusCode).To(Equal(http.StatusCreated))
				Expect(result.Records).To(HaveLen(1))
				Expect(result.Failures).To(HaveLen(1))
				Expect(result.Failures[0].Filename).To(Equal("notes.txt"))
				Expect(result.Failures[0].Error).To(ContainSubstring("JPEG and PNG"))
			})
		})

		When("extraction fails for every file", func() {
			BeforeEach(func() {
				extractor.err = errors.New("model timeout")
			})

			It("should report per-file failures without failing the request", func() {
				resp, result := upload(map[string][]byte{"invoice.png": []byte("fake png")})
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				Expect(result.Records).To(BeEmpty())
				Expect(result.Failures).To(HaveLen(1))
			})

			It("should leave the ledger empty", func() {
				upload(map[string][]byte{"invoice.png": []byte("fake png")})

				resp, err := client.Get(ghttpServer.URL() + "/api/invoices")
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				var records []*Record
				Expect(json.NewDecoder(resp.Body).Decode(&records)).NotTo(HaveOccurred())
				Expect(records).To(BeEmpty())
			})
		})

		When("no files are provided", func() {
			It("should return status Bad Request", func() {
				resp, _ := upload(map[string][]byte{})
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			})
		})
	})

	Describe("handleListRecords", func() {
		It("should return an empty array for a fresh session", func() {
			resp, err := client.Get(ghttpServer.URL() + "/api/invoices")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(Equal("application/json"))

			var records []*Record
			Expect(json.NewDecoder(resp.Body).Decode(&records)).NotTo(HaveOccurred())
			Expect(records).To(BeEmpty())
		})

		It("should not allocate a session for a cookieless read", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/invoices")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Values("Set-Cookie")).To(BeEmpty())

			var records []*Record
			Expect(json.NewDecoder(resp.Body).Decode(&records)).NotTo(HaveOccurred())
			Expect(records).To(BeEmpty())
		})

		It("should isolate ledgers between different clients", func() {
			upload(map[string][]byte{"invoice.png": []byte("fake png")})

			other := newSessionClient()
			resp, err := other.Get(ghttpServer.URL() + "/api/invoices")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()

			var records []*Record
			Expect(json.NewDecoder(resp.Body).Decode(&records)).NotTo(HaveOccurred())
			Expect(records).To(BeEmpty())
		})
	})

	Describe("handleEditRecord", func() {
		var recordID string

		BeforeEach(func() {
			_, result := upload(map[string][]byte{"invoice.png": []byte("fake png")})
			Expect(result.Records).To(HaveLen(1))
			recordID = result.Records[0].ID
		})

		edit := func(id, field, value string) *http.Response {
			body, err := json.Marshal(EditRequest{Field: field, Value: value})
			Expect(err).NotTo(HaveOccurred())
			req, err := http.NewRequest("PATCH", ghttpServer.URL()+"/api/invoices/"+id, bytes.NewReader(body))
			Expect(err).NotTo(HaveOccurred())
			req.Header.Set("Content-Type", "application/json")
			resp, err := client.Do(req)
			Expect(err).NotTo(HaveOccurred())
			return resp
		}

		It("should apply a valid edit and return the record", func() {
			resp := edit(recordID, "vendor", "Blue Bottle")
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var record Record
			Expect(json.NewDecoder(resp.Body).Decode(&record)).NotTo(HaveOccurred())
			Expect(record.Vendor).To(Equal("Blue Bottle"))
		})

		It("should return Unprocessable Entity for a negative amount", func() {
			resp := edit(recordID, "amount", "-10")
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusUnprocessableEntity))
		})

		It("should return Not Found for an unknown record", func() {
			resp := edit("missing", "vendor", "X")
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})
	})

	Describe("handleDeleteRecord", func() {
		It("should remove the record", func() {
			_, result := upload(map[string][]byte{"invoice.png": []byte("fake png")})
			recordID := result.Records[0].ID

			req, err := http.NewRequest("DELETE", ghttpServer.URL()+"/api/invoices/"+recordID, nil)
			Expect(err).NotTo(HaveOccurred())
			resp, err := client.Do(req)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
		})
	})

	Describe("handleGetRecordImage", func() {
		It("should serve the retained upload bytes", func() {
			_, result := upload(map[string][]byte{"invoice.png": []byte("fake png")})
			recordID := result.Records[0].ID

			resp, err := client.Get(ghttpServer.URL() + "/api/invoices/" + recordID + "/image")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(Equal("image/png"))

			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(body).To(Equal([]byte("fake png")))
		})
	})

	Describe("handleExport", func() {
		It("should return an XLSX attachment", func() {
			upload(map[string][]byte{"invoice.png": []byte("fake png")})

			resp, err := client.Get(ghttpServer.URL() + "/api/export")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(Equal("application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"))
			Expect(resp.Header.Get("Content-Disposition")).To(ContainSubstring("invoice_report.xlsx"))

			data, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			f, err := excelize.OpenReader(bytes.NewReader(data))
			Expect(err).NotTo(HaveOccurred())
			defer f.Close()
			rows, err := f.GetRows("Invoices")
			Expect(err).NotTo(HaveOccurred())
			Expect(rows).To(HaveLen(2))
		})

		It("should succeed for an empty ledger", func() {
			resp, err := client.Get(ghttpServer.URL() + "/api/export")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
		})
	})

	Describe("handleListCategories", func() {
		It("should return the taxonomy", func() {
			resp, err := client.Get(ghttpServer.URL() + "/api/categories")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()

			var categories []string
			Expect(json.NewDecoder(resp.Body).Decode(&categories)).NotTo(HaveOccurred())
			Expect(categories).To(ContainElements("F&B", "Transportation", "Office Supplies", "Utilities", "Software", "Other"))
		})
	})

	Describe("handleResetSession", func() {
		It("should discard the ledger", func() {
			upload(map[string][]byte{"invoice.png": []byte("fake png")})

			req, err := http.NewRequest("DELETE", ghttpServer.URL()+"/api/session", nil)
			Expect(err).NotTo(HaveOccurred())
			resp, err := client.Do(req)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))

			listResp, err := client.Get(ghttpServer.URL() + "/api/invoices")
			Expect(err).NotTo(HaveOccurred())
			defer listResp.Body.Close()
			var records []*Record
			Expect(json.NewDecoder(listResp.Body).Decode(&records)).NotTo(HaveOccurred())
			Expect(records).To(BeEmpty())
		})
	})

	Describe("basic auth", func() {
		BeforeEach(func() {
			auth = BasicAuth{Username: "finance", Password: "secret"}
			server = NewServerWithMux(service, auth, http.NewServeMux())
			startServer()
		})

		It("should reject requests without credentials", func() {
			resp, err := client.Get(ghttpServer.URL() + "/api/invoices")
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
		})

		It("should accept requests with valid credentials", func() {
			req, err := http.NewRequest("GET", ghttpServer.URL()+"/api/invoices", nil)
			Expect(err).NotTo(HaveOccurred())
			req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte("finance:secret")))
			resp, err := client.Do(req)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
		})
	})
})
