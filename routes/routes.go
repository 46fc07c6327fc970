package routes

import (
	controller "fieldcrm/controllers"
	"fieldcrm/middleware"
	"fieldcrm/policy"
	"fieldcrm/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// Controllers bundles every handler set the router mounts
type Controllers struct {
	Users        *controller.UserController
	Contacts     *controller.ContactController
	Categories   *controller.CategoryController
	ProfileTypes *controller.ProfileTypeController
	CustomFields *controller.CustomFieldController
	Appliances   *controller.ApplianceController
	Pipeline     *controller.PipelineController
	Deals        *controller.DealController
	Tasks        *controller.TaskController
	Services     *controller.ServiceController
	Sheets       *controller.ServiceSheetController
	Invoices     *controller.InvoiceController
	Payments     *controller.PaymentController
	Attachments  *controller.AttachmentController
	Automations  *controller.AutomationController
	Webhooks     *controller.WebhookController
	SMS          *controller.SMSController
	SMSHub       *controller.SMSHub
	AI           *controller.AIController
	Integrations *controller.IntegrationController
	Dashboard    *controller.DashboardController
	Audit        *controller.AuditController
}

// Deps is everything Setup needs besides the app
type Deps struct {
	Gate      *middleware.Gate
	AILimiter fiber.Handler
	Controllers
}

func Setup(app *fiber.App, d Deps) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// callers that authenticate with their own signature or secret
	public := app.Group("/api")
	public.Post("/stripe/webhook", d.Payments.HandleStripeWebhook)
	public.Post("/sms/inbound", d.SMS.HandleInbound)
	public.Post("/webhooks/process", d.Webhooks.ProcessDeliveries)
	public.Get("/integrations/google/callback", d.Integrations.GoogleCallback)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/sms", d.Gate.Protected(), d.Gate.RequirePermission(policy.SMSRead), websocket.New(d.SMSHub.HandleSMSStream))

	api := app.Group("/api", d.Gate.Protected())
	perm := d.Gate.RequirePermission

	api.Get("/me", d.Users.GetCurrentUser)
	api.Get("/users", perm(policy.UsersManage), d.Users.GetUsers)
	api.Post("/users", perm(policy.UsersManage), d.Users.CreateUser)
	api.Put("/users/:id/role", perm(policy.UsersManage), d.Users.UpdateRole)

	contacts := api.Group("/contacts")
	contacts.Get("/", perm(policy.ContactsRead), d.Contacts.GetContacts)
	contacts.Post("/", perm(policy.ContactsWrite), d.Contacts.CreateContact)
	contacts.Post("/import", perm(policy.ContactsWrite), d.Contacts.ImportContacts)
	contacts.Get("/export", perm(policy.ContactsRead), d.Contacts.ExportContactsCSV)
	contacts.Get("/:id", perm(policy.ContactsRead), d.Contacts.GetContact)
	contacts.Put("/:id", perm(policy.ContactsWrite), d.Contacts.UpdateContact)
	contacts.Delete("/:id", perm(policy.ContactsDelete), d.Contacts.DeleteContact)
	contacts.Put("/:id/categories", perm(policy.ContactsWrite), d.Contacts.SetCategories)
	contacts.Get("/:id/domain-info", perm(policy.ContactsRead), d.Contacts.GetDomainInfo)
	contacts.Get("/:id/verify-email", perm(policy.ContactsRead), d.Contacts.VerifyEmail)
	contacts.Get("/:id/profile-types", perm(policy.ContactsRead), d.ProfileTypes.GetAssignments)
	contacts.Post("/:id/profile-types", perm(policy.ContactsWrite), d.ProfileTypes.AssignProfileType)
	contacts.Delete("/:id/profile-types/:typeId", perm(policy.ContactsWrite), d.ProfileTypes.RemoveAssignment)
	contacts.Get("/:id/custom-fields", perm(policy.ContactsRead), d.CustomFields.GetValues)
	contacts.Put("/:id/custom-fields", perm(policy.ContactsWrite), d.CustomFields.UpsertValues)
	contacts.Get("/:id/appliances", perm(policy.ContactsRead), d.Appliances.GetAppliances)
	contacts.Post("/:id/appliances", perm(policy.ContactsWrite), d.Appliances.CreateAppliance)
	api.Delete("/appliances/:id", perm(policy.ContactsWrite), d.Appliances.DeleteAppliance)

	api.Get("/categories", perm(policy.ContactsRead), d.Categories.GetCategories)
	api.Post("/categories", perm(policy.SettingsManage), d.Categories.CreateCategory)
	api.Put("/categories/:id", perm(policy.SettingsManage), d.Categories.UpdateCategory)
	api.Delete("/categories/:id", perm(policy.SettingsManage), d.Categories.DeleteCategory)

	api.Get("/profile-types", perm(policy.ContactsRead), d.ProfileTypes.GetProfileTypes)
	api.Post("/profile-types", perm(policy.SettingsManage), d.ProfileTypes.CreateProfileType)
	api.Put("/profile-types/:id", perm(policy.SettingsManage), d.ProfileTypes.UpdateProfileType)
	api.Delete("/profile-types/:id", perm(policy.SettingsManage), d.ProfileTypes.DeleteProfileType)

	api.Get("/custom-fields", perm(policy.ContactsRead), d.CustomFields.GetDefinitions)
	api.Post("/custom-fields", perm(policy.SettingsManage), d.CustomFields.CreateDefinition)
	api.Put("/custom-fields/:id", perm(policy.SettingsManage), d.CustomFields.UpdateDefinition)
	api.Delete("/custom-fields/:id", perm(policy.SettingsManage), d.CustomFields.DeleteDefinition)

	api.Get("/pipeline-stages", perm(policy.DealsRead), d.Pipeline.GetStages)
	api.Post("/pipeline-stages", perm(policy.SettingsManage), d.Pipeline.CreateStage)
	api.Put("/pipeline-stages/:id", perm(policy.SettingsManage), d.Pipeline.UpdateStage)
	api.Delete("/pipeline-stages/:id", perm(policy.SettingsManage), d.Pipeline.DeleteStage)

	api.Get("/deals", perm(policy.DealsRead), d.Deals.GetDeals)
	api.Post("/deals", perm(policy.DealsWrite), d.Deals.CreateDeal)
	api.Get("/deals/:id", perm(policy.DealsRead), d.Deals.GetDeal)
	api.Put("/deals/:id", perm(policy.DealsWrite), d.Deals.UpdateDeal)
	api.Delete("/deals/:id", perm(policy.DealsDelete), d.Deals.DeleteDeal)

	api.Get("/tasks", perm(policy.TasksRead), d.Tasks.GetTasks)
	api.Post("/tasks", perm(policy.TasksWrite), d.Tasks.CreateTask)
	api.Get("/tasks/:id", perm(policy.TasksRead), d.Tasks.GetTask)
	api.Put("/tasks/:id", perm(policy.TasksWrite), d.Tasks.UpdateTask)
	api.Delete("/tasks/:id", perm(policy.TasksDelete), d.Tasks.DeleteTask)

	svc := api.Group("/services")
	svc.Get("/", perm(policy.ServicesRead), d.Services.GetServices)
	svc.Post("/", perm(policy.ServicesWrite), d.Services.CreateService)
	svc.Get("/:id", perm(policy.ServicesRead), d.Services.GetService)
	svc.Put("/:id", perm(policy.ServicesWrite), d.Services.UpdateService)
	svc.Delete("/:id", perm(policy.ServicesDelete), d.Services.DeleteService)
	svc.Post("/:id/triage", perm(policy.ServicesWrite), d.Services.RunTriage)
	svc.Get("/:id/triage", perm(policy.ServicesRead), d.Services.GetTriage)
	svc.Post("/:id/request-info", perm(policy.SMSSend), d.Services.RequestInfo)
	svc.Post("/:id/calendar-sync", perm(policy.ServicesWrite), d.Services.SyncCalendar)

	api.Get("/service-sheets", perm(policy.ServicesRead), d.Sheets.GetSheets)
	api.Post("/service-sheets", perm(policy.SettingsManage), d.Sheets.CreateSheet)
	api.Delete("/service-sheets/:id", perm(policy.SettingsManage), d.Sheets.DeleteSheet)

	api.Get("/invoices", perm(policy.InvoicesRead), d.Invoices.GetInvoices)
	api.Post("/invoices", perm(policy.InvoicesWrite), d.Invoices.CreateInvoice)
	api.Get("/invoices/:id", perm(policy.InvoicesRead), d.Invoices.GetInvoice)
	api.Put("/invoices/:id", perm(policy.InvoicesWrite), d.Invoices.UpdateInvoice)
	api.Delete("/invoices/:id", perm(policy.InvoicesDelete), d.Invoices.DeleteInvoice)
	api.Post("/invoices/:id/send", perm(policy.InvoicesWrite), d.Invoices.SendInvoice)

	api.Get("/payments", perm(policy.PaymentsRead), d.Payments.GetPayments)
	api.Post("/payments/intent", perm(policy.PaymentsWrite), d.Payments.CreatePaymentIntent)
	api.Post("/payments/checkout", perm(policy.PaymentsWrite), d.Payments.CreateCheckoutSession)

	api.Get("/attachments", perm(policy.AttachmentsRead), d.Attachments.GetAttachments)
	api.Post("/attachments", perm(policy.AttachmentsWrite), d.Attachments.UploadAttachment)
	api.Delete("/attachments/:id", perm(policy.AttachmentsDelete), d.Attachments.DeleteAttachment)

	automations := api.Group("/automations", perm(policy.AutomationsManage))
	automations.Get("/", d.Automations.GetAutomations)
	automations.Post("/", d.Automations.CreateAutomation)
	automations.Post("/trigger", d.Automations.TriggerEvent)
	automations.Get("/:id", d.Automations.GetAutomation)
	automations.Put("/:id", d.Automations.UpdateAutomation)
	automations.Delete("/:id", d.Automations.DeleteAutomation)
	automations.Post("/:id/toggle", d.Automations.ToggleAutomation)
	automations.Get("/:id/runs", d.Automations.GetRuns)

	webhooks := api.Group("/webhooks", perm(policy.WebhooksManage))
	webhooks.Get("/", d.Webhooks.GetWebhooks)
	webhooks.Post("/", d.Webhooks.CreateWebhook)
	webhooks.Put("/:id", d.Webhooks.UpdateWebhook)
	webhooks.Delete("/:id", d.Webhooks.DeleteWebhook)
	webhooks.Get("/:id/deliveries", d.Webhooks.GetDeliveries)

	api.Get("/sms/threads", perm(policy.SMSRead), d.SMS.GetThreads)
	api.Get("/sms/threads/:id", perm(policy.SMSRead), d.SMS.GetThread)
	api.Post("/sms/send", perm(policy.SMSSend), d.SMS.SendSMS)

	aiChain := []fiber.Handler{perm(policy.AIUse)}
	if d.AILimiter != nil {
		aiChain = append(aiChain, d.AILimiter)
	}
	api.Post("/ai/assistant", append(aiChain, d.AI.Ask)...)

	integrations := api.Group("/integrations", perm(policy.IntegrationsManage))
	integrations.Get("/google/connect", d.Integrations.ConnectGoogle)
	integrations.Get("/google", d.Integrations.GoogleStatus)
	integrations.Delete("/google", d.Integrations.DisconnectGoogle)
	integrations.Post("/sheets/export", perm(policy.ContactsRead), d.Integrations.ExportContacts)

	api.Get("/dashboard", perm(policy.ReportsView), d.Dashboard.GetDashboard)
	api.Get("/dashboard/activity", perm(policy.ReportsView), d.Dashboard.GetActivityOverTime)
	api.Get("/audit-logs", perm(policy.AuditRead), d.Audit.GetAuditLogs)

	app.Use(func(c *fiber.Ctx) error {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Route not found", nil)
	})
}
